package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/audiogen"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/providers/stability"
	"server/internal/storage"
	"server/internal/upload"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.StabilityAPIKey == "" {
		logger.Warn().Msg("STABILITY_API_KEY not set; generation endpoints will return 500")
	}

	store, err := storage.NewStore(cfg.StoragePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize artifact storage")
	}
	uploads, err := upload.NewStore(cfg.TempPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize upload staging")
	}

	client := stability.NewClient(stability.Options{
		APIKey:  cfg.StabilityAPIKey,
		BaseURL: cfg.StabilityBaseURL,
		Model:   cfg.StabilityModel,
		Logger:  logger,
	})
	service := audiogen.NewService(client, store, uploads, logger)

	app := handlers.NewApp(service, store, cfg, logger)
	router := httpapi.NewRouter(app, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		logger.Info().Str("uploads", store.BasePath()).Str("temp", cfg.TempPath).Msg("storage directories ready")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
