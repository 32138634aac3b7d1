package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uploads_dir": a.Store.BasePath(),
		"temp_dir":    a.Config.TempPath,
		"port":        a.Config.Port,
	})
}

// Info answers the root path when no frontend is mounted.
func (a *App) Info(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"message": "Stable Audio API Server",
		"status":  "running",
		"endpoints": map[string]string{
			"health":   "/health",
			"generate": "/generate",
			"files":    "/files",
		},
	})
}
