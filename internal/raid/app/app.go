// Package app assembles the database, catalog, engine and service from a
// Config. Both binaries start through Open.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rsned/raid-optimizer-server/internal/raid/catalog"
	"github.com/rsned/raid-optimizer-server/internal/raid/config"
	"github.com/rsned/raid-optimizer-server/internal/raid/db"
	"github.com/rsned/raid-optimizer-server/internal/raid/engine"
	"github.com/rsned/raid-optimizer-server/internal/raid/metrics"
	"github.com/rsned/raid-optimizer-server/internal/raid/service"
	"github.com/rsned/raid-optimizer-server/internal/raid/solver"
	"github.com/rsned/raid-optimizer-server/internal/raid/sync"
)

// ErrNoCatalog is returned when the database holds no catalog and no
// catalog files are configured.
var ErrNoCatalog = errors.New("no catalog: set catalog.explosives and catalog.structures or import one first")

// App holds the long-lived components.
type App struct {
	Config  *config.Config
	DB      *db.DB
	Catalog *catalog.Catalog
	Engine  *engine.Engine
	Service *service.Service
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// NewLogger returns a text logger at the given level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Open opens the database, imports the configured catalog files if any,
// otherwise loads the stored catalog, and wires the service.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	database, err := db.OpenAndInit(ctx, cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	cat, err := loadCatalog(ctx, database, cfg.Catalog, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	resolver, err := catalog.NewResolver(cat, cfg.Resolver.CacheSize, cfg.Resolver.MaxSuggestions)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("creating resolver: %w", err)
	}

	rec := metrics.NewRecorder()
	eng := engine.New(cat, engine.Options{
		Solver:       solver.NewBranchAndBound(cfg.Solver.MaxNodes, logger),
		SolveTimeout: cfg.Solver.Timeout,
		MaxInstances: cfg.Solver.MaxInstances,
		MaxPatterns:  cfg.Solver.MaxPatterns,
		Logger:       logger,
		Observer:     rec,
	})

	return &App{
		Config:  cfg,
		DB:      database,
		Catalog: cat,
		Engine:  eng,
		Service: service.New(eng, resolver, db.NewPlanStore(database), logger),
		Metrics: rec,
		Logger:  logger,
	}, nil
}

func loadCatalog(ctx context.Context, database *db.DB, files config.CatalogConfig, logger *slog.Logger) (*catalog.Catalog, error) {
	if files.Explosives != "" && files.Structures != "" {
		logger.Info("importing catalog", "explosives", files.Explosives, "structures", files.Structures)
		cat, err := sync.NewSyncer(database).ImportCatalogFromFiles(ctx, files.Explosives, files.Structures)
		if err != nil {
			return nil, fmt.Errorf("importing catalog: %w", err)
		}
		return cat, nil
	}

	cat, err := db.NewCatalogStore(database).LoadCatalog(ctx)
	if errors.Is(err, db.ErrEmptyCatalog) {
		return nil, ErrNoCatalog
	}
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	logger.Debug("loaded stored catalog",
		"explosives", len(cat.ExplosiveIDs()),
		"structures", len(cat.StructureIDs()))
	return cat, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}
