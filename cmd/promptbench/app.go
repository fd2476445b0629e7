package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spboyer/promptbench/internal/catalog"
	"github.com/spboyer/promptbench/internal/execution"
	"github.com/spboyer/promptbench/internal/graders"
	"github.com/spboyer/promptbench/internal/orchestration"
	"github.com/spboyer/promptbench/internal/projectconfig"
	"github.com/spboyer/promptbench/internal/store"
	"github.com/spboyer/promptbench/internal/webapi"
)

// backend is a configured model backend.
type backend struct {
	invoker execution.ModelInvoker
	// lister may be nil when the backend cannot enumerate its models.
	lister   execution.ModelLister
	shutdown func(context.Context) error
}

// newBackend is a test hook for replacing the model backend.
var newBackend = defaultNewBackend

func defaultNewBackend(cfg *projectconfig.ProjectConfig) (*backend, error) {
	switch cfg.Backend.Type {
	case projectconfig.BackendOpenAI:
		apiKey := cfg.APIKey()
		if apiKey == "" {
			slog.Warn("no API key found for backend", "env", cfg.Backend.APIKeyEnv)
		}
		inv := execution.NewOpenAIInvoker(execution.OpenAIInvokerOptions{
			BaseURL: cfg.Backend.BaseURL,
			APIKey:  apiKey,
			Referer: cfg.Backend.Referer,
			Title:   cfg.Backend.Title,
			Timeout: cfg.BackendTimeout(),
		})
		return &backend{invoker: inv, lister: inv}, nil
	case projectconfig.BackendCopilot:
		inv := execution.NewCopilotInvoker(&execution.CopilotInvokerOptions{})
		return &backend{invoker: inv, shutdown: inv.Shutdown}, nil
	case projectconfig.BackendMock:
		inv := execution.NewMockInvoker()
		return &backend{invoker: inv, lister: inv}, nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
}

func newStore(ctx context.Context, cfg *projectconfig.ProjectConfig) (store.RunStore, func(context.Context) error, error) {
	switch cfg.Store.Type {
	case projectconfig.StoreMemory:
		return store.NewMemoryStore(), nil, nil
	case projectconfig.StoreFile:
		return store.NewFileStore(cfg.Store.Dir), nil, nil
	case projectconfig.StoreMongo:
		ms, err := store.NewMongoStore(ctx, cfg.Store.MongoURI, cfg.Store.Database)
		if err != nil {
			return nil, nil, err
		}
		return ms, ms.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

// app holds the services wired from a project configuration.
type app struct {
	cfg          *projectconfig.ProjectConfig
	logger       *slog.Logger
	store        store.RunStore
	orchestrator *orchestration.Orchestrator
	validator    *graders.Validator
	catalog      *catalog.Catalog

	closers []func(context.Context) error
}

// loadApp loads the project configuration from the working directory and
// wires the services it describes. Extra options are applied after the ones
// derived from the configuration.
func loadApp(ctx context.Context, extra ...orchestration.Option) (*app, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	cfg, err := projectconfig.Load(wd)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, extra...)
}

func newApp(ctx context.Context, cfg *projectconfig.ProjectConfig, extra ...orchestration.Option) (*app, error) {
	logger := slog.Default()
	a := &app{cfg: cfg, logger: logger}

	runStore, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Type, err)
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	a.store = runStore

	be, err := newBackend(cfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if be.shutdown != nil {
		a.closers = append(a.closers, be.shutdown)
	}

	var lister execution.ModelLister = catalog.StaticModels{}
	if be.lister != nil {
		lister = be.lister
	}
	if len(cfg.Catalog.Models) > 0 {
		lister = catalog.StaticModelsFromIDs(cfg.Catalog.Models)
	}
	catalogOpts := []catalog.Option{catalog.WithTTL(cfg.CatalogTTL())}
	if cfg.Catalog.CacheDir != "" {
		catalogOpts = append(catalogOpts, catalog.WithCacheDir(cfg.Catalog.CacheDir))
	}
	a.catalog = catalog.New(lister, catalogOpts...)

	opts := []orchestration.Option{
		orchestration.WithLogger(logger),
		orchestration.WithMaxTokens(cfg.Defaults.MaxTokens),
		orchestration.WithDoneGrace(cfg.DoneGrace()),
		orchestration.WithListLimit(cfg.Runs.ListLimit),
	}
	if cfg.Defaults.Temperature != nil {
		opts = append(opts, orchestration.WithDefaultTemperature(*cfg.Defaults.Temperature))
	}
	a.orchestrator = orchestration.New(runStore, be.invoker, append(opts, extra...)...)

	a.validator = graders.NewValidator(runStore, be.invoker,
		graders.WithDefaultModel(cfg.Defaults.ValidatorModel),
		graders.WithLogger(logger),
	)

	logger.Debug("services ready",
		"backend", cfg.Backend.Type,
		"store", cfg.Store.Type,
		"config_dir", cfg.Dir)
	return a, nil
}

func (a *app) services() webapi.Services {
	return webapi.Services{
		Runs:           a.orchestrator,
		Validator:      a.validator,
		Catalog:        a.catalog,
		Logger:         a.logger,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}
}

// Close waits for launched runs to settle, then releases the backend and the
// store.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.orchestrator != nil {
		if err := a.orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("waiting for runs: %w", err))
		}
	}
	for _, closeFn := range slices.Backward(a.closers) {
		if err := closeFn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
