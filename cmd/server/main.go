package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mizuha/annoset/internal/ai"
	"github.com/mizuha/annoset/internal/api"
	"github.com/mizuha/annoset/internal/config"
	"github.com/mizuha/annoset/internal/export"
	"github.com/mizuha/annoset/internal/ingest"
	"github.com/mizuha/annoset/internal/store"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	pipeline := ingest.New(logger)

	index, err := store.OpenIndex(cfg.IndexPath)
	if err != nil {
		logger.Warn().Err(err).Msg("project index unavailable, directory scans will be used")
		index = nil
	} else {
		defer index.Close()
	}

	projects, annotations, err := store.NewStores(cfg.DataDir, pipeline, index, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize stores")
	}

	if index != nil {
		summaries, err := projects.Scan()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to scan storage root")
		}
		if err := index.Rebuild(summaries); err != nil {
			logger.Fatal().Err(err).Msg("failed to rebuild project index")
		}
		logger.Info().Int("projects", len(summaries)).Msg("project index rebuilt")
	}

	exporter := export.New(cfg.DataDir, annotations, logger)

	var aiClient *ai.Client
	if cfg.OpenAIAPIKey != "" {
		aiClient = ai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	} else {
		logger.Info().Msg("OPENAI_API_KEY not set, playground and fine-tuning require a per-request key")
	}

	app := api.NewApp(api.App{
		Projects:          projects,
		Annotations:       annotations,
		Exporter:          exporter,
		AI:                aiClient,
		DataDir:           cfg.DataDir,
		MaxUploadSize:     cfg.MaxUploadSize,
		DefaultTrainRatio: cfg.TrainRatio,
		AIBaseURL:         cfg.OpenAIBaseURL,
		FineTuneModel:     cfg.FineTuneModel,
		Logger:            logger,
	})

	router := api.NewRouter(app, api.RouterConfig{
		DocsUser:     cfg.DocsUser,
		DocsPassword: cfg.DocsPassword,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("data_dir", cfg.DataDir).Msg("server starting")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal().Err(err).Msg("server stopped")
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}
}
