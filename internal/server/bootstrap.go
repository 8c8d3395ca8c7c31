package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/agenthands/bioguard/internal/config"
	"github.com/agenthands/bioguard/internal/core"
	"github.com/agenthands/bioguard/internal/core/cache"
	"github.com/agenthands/bioguard/internal/core/knowledge"
	"github.com/agenthands/bioguard/internal/core/orchestrator"
	"github.com/agenthands/bioguard/internal/core/provider"
	"github.com/agenthands/bioguard/internal/driver"
	"github.com/agenthands/bioguard/internal/llm"
	"github.com/agenthands/bioguard/internal/metrics"
	"github.com/agenthands/bioguard/internal/storage"
	"github.com/agenthands/bioguard/internal/storage/graph"
	"github.com/agenthands/bioguard/internal/storage/relational"
	"github.com/agenthands/bioguard/internal/storage/vector"
)

// App is the assembled analysis service with its stores.
type App struct {
	Config     *config.Config
	Service    *core.Service
	Reconciler *storage.Reconciler
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry

	logger  *slog.Logger
	closers []func(context.Context) error
}

// Build opens the configured stores and wires the pipeline. On error every
// store opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	app := &App{Config: cfg, logger: logger, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			app.Close(context.Background())
		}
	}()

	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(app.Registry)

	records, err := relational.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	app.onClose(func(context.Context) error { return records.Close() })

	vectors, err := app.openVectors(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	g, err := app.openGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph store: %w", err)
	}

	c, err := app.openCache()
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	embedder, err := llm.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chain := provider.BuildOrder(cfg.Features, cfg.Credentials.Present())
	providers, err := provider.FromConfig(ctx, cfg, chain)
	if err != nil {
		return nil, err
	}
	logger.Info("provider chain", "providers", provider.Names(chain))

	kb := knowledge.Default()
	if cfg.Features.Enabled(config.FlagKnowledgeGraph) {
		if err := kb.Sync(ctx, g); err != nil {
			return nil, fmt.Errorf("failed to seed knowledge graph: %w", err)
		}
	}

	orch := orchestrator.New(cfg, providers, c, logger, app.Metrics)
	manager := storage.NewManager(cfg, records, vectors, g, embedder, logger, app.Metrics)
	app.Service = core.NewService(cfg, orch, manager, records, kb, logger)
	app.Reconciler = storage.NewReconciler(manager, cfg.Reconcile, logger, app.Metrics)
	return app, nil
}

func (a *App) onClose(f func(context.Context) error) {
	a.closers = append(a.closers, f)
}

func (a *App) openVectors(ctx context.Context, records *relational.Store) (vector.Store, error) {
	s := a.Config.Storage
	switch s.VectorBackend {
	case "weaviate":
		return vector.NewWeaviate(s.WeaviateURL, s.WeaviateClass)
	case "sqlite":
		if s.VectorPath == "" {
			if records.Dialect() != relational.SQLite {
				return nil, errors.New("vector_path is required unless records live in sqlite")
			}
			return vector.NewSQLite(ctx, records.DB())
		}
		db, _, err := relational.OpenDB(ctx, "sqlite", s.VectorPath)
		if err != nil {
			return nil, err
		}
		a.onClose(closeDB(db))
		return vector.NewSQLite(ctx, db)
	}
	return nil, fmt.Errorf("unknown vector backend %q", s.VectorBackend)
}

func closeDB(db *sql.DB) func(context.Context) error {
	return func(context.Context) error { return db.Close() }
}

func (a *App) openGraph(ctx context.Context) (graph.Store, error) {
	s := a.Config.Storage
	switch s.GraphBackend {
	case "memory":
		return graph.NewMemory(), nil
	case "memgraph":
		d, err := driver.NewMemgraphDriver(ctx, s.Memgraph.URI, s.Memgraph.User, s.Memgraph.Password, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(d.Close)
		return graph.NewMemgraph(ctx, d)
	}
	return nil, fmt.Errorf("unknown graph backend %q", s.GraphBackend)
}

func (a *App) openCache() (cache.Cache, error) {
	s := a.Config.Storage
	switch s.CacheBackend {
	case "memory":
		return cache.NewMemory(), nil
	case "badger":
		b, err := cache.OpenBadger(s.CachePath, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return b.Close() })
		return b, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", s.CacheBackend)
}

// Handler returns the HTTP router.
func (a *App) Handler() http.Handler {
	return NewServer(a.Service, a.Config, a.logger, a.Metrics, a.Registry).SetupRouter()
}

// Close releases the stores in reverse opening order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
