package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/audiogen"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/storage"
)

// App is the handler container. It owns no request state; everything is
// injected at construction so tests can point components at temporary
// directories and fake providers.
type App struct {
	Service *audiogen.Service
	Store   *storage.Store
	Config  *infra.Config
	Logger  zerolog.Logger
}

func NewApp(service *audiogen.Service, store *storage.Store, cfg *infra.Config, logger zerolog.Logger) *App {
	return &App{Service: service, Store: store, Config: cfg, Logger: logger}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, errorResponse{Error: message})
}

// fail maps a domain error onto the HTTP error contract: 400 validation,
// 404 not found, 408 timeout, upstream status passthrough for provider
// errors, 500 for configuration and everything else.
func (a *App) fail(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	var pErr *domain.ProviderError
	switch {
	case errors.As(err, &vErr):
		a.error(w, http.StatusBadRequest, vErr.Message)
	case errors.As(err, &pErr):
		a.json(w, pErr.StatusCode, errorResponse{
			Error:   fmt.Sprintf("API Error: %d", pErr.StatusCode),
			Details: pErr.Body,
		})
	case errors.Is(err, domain.ErrMissingAPIKey):
		a.error(w, http.StatusInternalServerError, "Stability API key not configured")
	case errors.Is(err, domain.ErrTimeout):
		a.error(w, http.StatusRequestTimeout, "Request timeout - audio generation took too long")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "File not found")
	default:
		a.Logger.Error().Err(err).Msg("request failed")
		a.json(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal server error",
			Details: err.Error(),
		})
	}
}
