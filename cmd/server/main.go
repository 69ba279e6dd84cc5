// Command server starts the RTMS ingestion core: it receives the
// vendor webhook, drives outbound signaling/media sessions, buffers
// and flushes transcripts, and serves the read/query HTTP surface.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rtms-ingest/internal/adapters"
	"rtms-ingest/internal/adapters/broadcast"
	"rtms-ingest/internal/adapters/index"
	"rtms-ingest/internal/adapters/search"
	"rtms-ingest/internal/adapters/summarize"
	"rtms-ingest/internal/api"
	"rtms-ingest/internal/config"
	"rtms-ingest/internal/logging"
	"rtms-ingest/internal/metrics"
	"rtms-ingest/internal/router"
	"rtms-ingest/internal/rtms"
	"rtms-ingest/internal/server"
	"rtms-ingest/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		initLogger := logging.Init(logging.DefaultConfig())
		initLogger.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	logger := logging.Init(logging.Config{
		Level:       logLevelName(cfg.LogLevel),
		ServiceName: "rtms-ingest",
		JSONFormat:  true,
	})
	recorder := metrics.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open storage")
		os.Exit(1)
	}
	defer store.Close()

	searcher := search.New(search.Config{
		BaseURL: cfg.SearchURL,
		Store:   store,
		Logger:  logging.Component(logger, "search"),
	})

	var summariser adapters.Summariser
	var completer adapters.Completer
	if cfg.InferenceURL != "" {
		inference := summarize.New(summarize.Config{BaseURL: cfg.InferenceURL, APIKey: cfg.InferenceAPIKey})
		summariser = inference
		completer = inference
	}

	broadcaster := broadcast.New(broadcast.Config{
		Logger:          logging.Component(logger, "broadcast"),
		RedisAddr:       cfg.RedisAddr,
		RedisPass:       cfg.RedisPassword,
		RegisterTimeout: 15 * time.Second,
	})
	defer func() {
		if err := broadcaster.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close broadcaster")
		}
	}()

	registry := rtms.NewRegistry(cfg.HistorySize)
	indexWriter := index.New(store)

	rtr := router.New(cfg, registry, indexWriter, summariser, broadcaster, logger)
	handler := api.New(cfg, rtr, store, searcher, completer, logger)

	srv, err := server.New(handler, server.Config{
		Addr: cfg.ListenAddr,
		TLS: server.TLSConfig{
			CertFile: cfg.TLSCertFile,
			KeyFile:  cfg.TLSKeyFile,
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     float64(cfg.RateLimitRPS),
			GlobalBurst:   cfg.RateLimitBurst,
			WebhookLimit:  cfg.WebhookLimit,
			WebhookWindow: time.Minute,
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisTimeout:  2 * time.Second,
		},
		CORS:    server.CORSConfig{AllowedOrigins: cfg.CORSOrigins},
		Logger:  logger,
		Metrics: recorder,
		Live:    broadcaster,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise server")
		os.Exit(1)
	}

	reconcilerStop := startMetricsReconciler(ctx, registry, recorder.SyncSessionsActive, time.Minute)
	defer reconcilerStop()

	errs := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("rtms ingestion core listening")
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			logger.Info().Str("cert_file", cfg.TLSCertFile).Msg("TLS enabled")
		}
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errs:
		logger.Error().Err(err).Msg("server error")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}

func logLevelName(level zerolog.Level) logging.Level {
	switch level {
	case zerolog.DebugLevel:
		return logging.LevelDebug
	case zerolog.InfoLevel:
		return logging.LevelInfo
	case zerolog.WarnLevel:
		return logging.LevelWarn
	case zerolog.ErrorLevel:
		return logging.LevelError
	default:
		return logging.LevelOff
	}
}
