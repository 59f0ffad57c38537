package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dusk-indust/auratriage/internal/backend"
	"github.com/dusk-indust/auratriage/internal/config"
	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"github.com/dusk-indust/auratriage/internal/records"
	"github.com/dusk-indust/auratriage/internal/telemetry"
)

// app holds the components a command runs cases with.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *orchestrator.Pipeline
	store    *records.Store
	shutdown telemetry.Shutdown
}

// loadConfig reads and validates the environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newApp wires telemetry, the backend, the pipeline and the case store.
// Logs go to logw; jsonLogs selects the JSON handler.
func (c *cli) newApp(ctx context.Context, logw io.Writer, jsonLogs bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(logw, jsonLogs, cfg.LogLevel)

	shutdown, err := telemetry.Init(ctx, telemetry.Settings{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, err
	}

	plan, err := loadPlan(c.flags.ConfigPath)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	pipeline, err := orchestrator.New(plan, newInvoker(cfg),
		orchestrator.WithStageTimeout(cfg.StageTimeout),
		orchestrator.WithMaxCascadeBytes(cfg.MaxCascadeBytes),
		orchestrator.WithStopOnDisconnect(cfg.StopOnDisconnect),
		orchestrator.WithPacer(backend.NewPacer(cfg.StageInterval)),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	logger.Debug("auratriage ready",
		"version", version,
		"backend", cfg.Backend,
		"stages", len(plan.Stages),
		"db", cfg.DBPath)

	return &app{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		store:    store,
		shutdown: shutdown,
	}, nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing case store", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown", "error", err)
	}
}

// newInvoker builds the backend every stage ref is routed through.
func newInvoker(cfg config.Config) backend.Invoker {
	var fallback backend.Invoker
	switch cfg.Backend {
	case config.BackendStub:
		fallback = backend.NewStub(nil)
	default:
		fallback = backend.NewOpenRouter(cfg.APIKey, backend.WithBaseURL(cfg.BaseURL))
	}
	return backend.NewRegistry(fallback)
}

// loadPlan applies the stage override file to the default plan. An explicit
// path must exist; otherwise auratriage.yml in the working directory is
// optional.
func loadPlan(path string) (orchestrator.Plan, error) {
	var (
		f   *config.StageFile
		err error
	)
	if path != "" {
		f, err = config.ReadStageFile(path)
	} else {
		f, err = config.LoadStageFile(".")
	}
	if err != nil {
		return orchestrator.Plan{}, fmt.Errorf("reading stage file: %w", err)
	}
	return f.Apply(orchestrator.DefaultPlan())
}

// openStore opens the case store, seeding it when it is empty and seeding is
// enabled.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*records.Store, error) {
	store, err := records.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	if !cfg.Seed {
		return store, nil
	}
	empty, err := store.IsEmpty(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	if empty {
		if _, err := store.Seed(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}
