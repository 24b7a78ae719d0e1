package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlassist/sqlassist/internal/api"
	"github.com/sqlassist/sqlassist/internal/api/uistatic"
	"github.com/sqlassist/sqlassist/internal/archive"
	"github.com/sqlassist/sqlassist/internal/assistant"
	"github.com/sqlassist/sqlassist/internal/chart"
	"github.com/sqlassist/sqlassist/internal/config"
	"github.com/sqlassist/sqlassist/internal/database"
	"github.com/sqlassist/sqlassist/internal/nl2sql"
	"github.com/sqlassist/sqlassist/internal/observability"
	"github.com/sqlassist/sqlassist/internal/prompt"
	"github.com/sqlassist/sqlassist/internal/query"
	"github.com/sqlassist/sqlassist/internal/retry"
	"github.com/sqlassist/sqlassist/internal/schema"
	"github.com/sqlassist/sqlassist/internal/speech"
	"github.com/sqlassist/sqlassist/internal/storage"
	s3store "github.com/sqlassist/sqlassist/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlassist-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	// The template is read once; a broken template stops startup.
	template, err := prompt.Load(cfg.Prompt.TemplatePath)
	if err != nil {
		logger.Error("failed to load prompt template", slog.String("path", cfg.Prompt.TemplatePath), slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.Open(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("failed to open database", slog.String("driver", cfg.Database.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var objectStore storage.ObjectStore
	var objectStoreReady api.ReadinessCheck
	datasets, err := database.ParseDatasets(cfg.Database.Datasets)
	if err != nil {
		logger.Error("invalid dataset configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Archive.Enabled || len(datasets) > 0 {
		s3, err := s3store.New(context.Background(), s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore, objectStoreReady = s3, s3.Ping
	}
	if len(datasets) > 0 {
		attachment, err := database.AttachDatasets(context.Background(), db, objectStore, datasets)
		if err != nil {
			logger.Error("failed to attach datasets", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = attachment.Close() }()
		logger.Info("datasets attached", slog.Int("tables", len(attachment.Tables)))
	}

	introspector, err := schema.NewIntrospector(db, cfg.Database.Driver)
	if err != nil {
		logger.Error("failed to initialize schema introspection", slog.Any("error", err))
		os.Exit(1)
	}
	generator, err := nl2sql.New(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize sql generator", slog.String("provider", cfg.AI.Provider), slog.Any("error", err))
		os.Exit(1)
	}

	service := &assistant.Service{
		Schema:    introspector,
		Template:  template,
		Generator: generator,
		Executor:  query.NewExecutor(db),
		Selector: chart.NewSelector(chart.Options{
			CategoryThreshold: cfg.Chart.CategoryThreshold,
			PieOnEmpty:        cfg.Chart.PieOnEmpty,
		}),
		DefaultLanguage: cfg.Speech.DefaultLanguage,
		Logger:          logger,
	}
	if cfg.Speech.Enabled {
		retryCfg := retry.DefaultConfig()
		retryCfg.MaxAttempts = cfg.Speech.MaxAttempts
		recognizer, err := speech.NewWhisperClient(speech.WhisperConfig{
			BaseURL: cfg.Speech.BaseURL,
			APIKey:  cfg.Speech.APIKey,
			Model:   cfg.Speech.Model,
			Timeout: cfg.Speech.Timeout,
			Retry:   retryCfg,
		})
		if err != nil {
			logger.Error("failed to initialize speech recognition", slog.Any("error", err))
			os.Exit(1)
		}
		service.Recognizer = recognizer
	}
	if cfg.Archive.Enabled {
		archiver, err := archive.New(objectStore, cfg.Archive.Prefix)
		if err != nil {
			logger.Error("failed to initialize interaction archive", slog.Any("error", err))
			os.Exit(1)
		}
		service.Archiver = archiver
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:    logger,
		Assistant: service,
		UI:        uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			db.PingContext,
			api.CheckObjectStoreConfig(cfg),
			objectStoreReady,
		),
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("driver", cfg.Database.Driver),
			slog.String("provider", cfg.AI.Provider),
			slog.Bool("speech", cfg.Speech.Enabled),
			slog.Bool("archive", cfg.Archive.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
