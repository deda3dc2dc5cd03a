package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lumenworks/saleschat/internal/attachment"
	"github.com/lumenworks/saleschat/internal/config"
	"github.com/lumenworks/saleschat/internal/dispatch"
	"github.com/lumenworks/saleschat/internal/engine"
	"github.com/lumenworks/saleschat/internal/httpapi"
	"github.com/lumenworks/saleschat/internal/intel"
	"github.com/lumenworks/saleschat/internal/model"
	"github.com/lumenworks/saleschat/internal/profile"
	"github.com/lumenworks/saleschat/internal/prompt"
	"github.com/lumenworks/saleschat/internal/server"
	"github.com/lumenworks/saleschat/internal/storage"
	"github.com/lumenworks/saleschat/internal/storage/memory"
	"github.com/lumenworks/saleschat/internal/storage/sqlite"
	"github.com/lumenworks/saleschat/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("saleschat", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := newStore(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	leadSink := dispatch.NewWebhookSink(dispatch.WebhookSinkConfig{
		Name:    "lead-webhook",
		URL:     cfg.Sinks.Lead.URL,
		Timeout: cfg.Sinks.Lead.Timeout,
		Retries: cfg.Sinks.Lead.Retries,
		Headers: cfg.Sinks.Lead.Headers,
	})
	escalationSink := dispatch.NewWebhookSink(dispatch.WebhookSinkConfig{
		Name:    "escalation-webhook",
		URL:     cfg.Sinks.Escalation.URL,
		Timeout: cfg.Sinks.Escalation.Timeout,
		Retries: cfg.Sinks.Escalation.Retries,
		Headers: cfg.Sinks.Escalation.Headers,
	})
	dispatcher := dispatch.New(leadSink, escalationSink, store, logger)

	var looker intel.Looker
	if cfg.Intel.URL != "" {
		looker = intel.NewClient(cfg.Intel.URL, cfg.Intel.APIKey, logger,
			intel.WithTimeout(cfg.Intel.Timeout))
	}

	persona := cfg.Prompt.Persona
	if persona == "" {
		persona = prompt.DefaultPersona
	}
	knowledge := cfg.Prompt.KnowledgeBase
	if knowledge == "" {
		knowledge = prompt.DefaultKnowledgeBase
	}

	eng := engine.New(engine.Options{
		Attachments: attachment.New(cfg.Engine.MaxAttachments, cfg.Engine.MaxAttachmentBytes, logger),
		Profiles:    profile.NewStore(),
		Assembler: prompt.New(persona, knowledge, cfg.Model.Name,
			cfg.Engine.MaxTurnWindow, cfg.Engine.PromptTokenBudget),
		Model: model.NewClient(cfg.Model.APIKey,
			model.WithBaseURL(cfg.Model.BaseURL),
			model.WithTimeout(cfg.Model.Timeout)),
		Dispatcher:    dispatcher,
		Store:         store,
		Intel:         looker,
		Logger:        logger,
		ModelName:     cfg.Model.Name,
		MaxTokens:     cfg.Model.MaxTokens,
		FallbackReply: cfg.Model.FallbackReply,
		IdleTimeout:   cfg.Engine.IdleTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Engine.IdleTimeout > 0 {
		eng.StartSweeper(ctx, cfg.Engine.IdleTimeout/2)
	}

	srv := server.New(cfg.Server.Port, cfg.Server.RequestTimeout, cfg.Server.RateLimit, logger)
	httpapi.NewHandler(eng, logger).Register(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("saleschat started",
		slog.Int("port", cfg.Server.Port),
		slog.String("model", cfg.Model.Name),
		slog.String("storage", cfg.Storage.Type),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", slog.String("error", err.Error()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	// Let in-flight lead and escalation deliveries finish.
	dispatcher.Wait()

	logger.Info("saleschat shutdown complete")
}

func newStore(cfg *config.Config, logger *slog.Logger) (storage.SessionStore, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		logger.Info("using sqlite storage", slog.String("path", cfg.Storage.SQLite.Path))
		return sqlite.New(cfg.Storage.SQLite.Path)
	default:
		logger.Info("using in-memory storage")
		return memory.New(), nil
	}
}
