package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

// NewRouter assembles the HTTP surface: three generation endpoints, the
// gallery listing, artifact download and liveness.
func NewRouter(app *handlers.App, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(app.Config.AllowedOrigins),
	)

	r.Get("/", app.Info)
	r.Get("/health", app.Health)

	r.Post("/generate", app.Generate)
	r.Post("/generate-a2a", app.GenerateA2A)
	r.Post("/generate-inpaint", app.GenerateInpaint)

	r.Get("/files", app.Files)
	r.Get("/download/{filename}", app.Download)

	return r
}
