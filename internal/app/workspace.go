package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"archplan/internal/cache"
	"archplan/internal/catalog"
	"archplan/internal/config"
	"archplan/internal/db"
	"archplan/internal/engine"
	"archplan/internal/migrate"
	"archplan/internal/repo"
)

// Workspace holds the opened resources of one archplan directory.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine

	closers []func() error
}

// Open loads archplan.yml (defaults when absent), opens and migrates the
// database, seeds the built-in catalog into an empty one and wires the
// engine with the configured cache driver.
func Open(ctx context.Context, dir string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	w := &Workspace{Dir: dir, DB: conn, Config: cfg, closers: []func() error{conn.Close}}
	if err := migrate.Migrate(ctx, conn); err != nil {
		w.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	store, closeStore, err := cache.Open(ctx, cfg.Cache, r, logger)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.closers = append(w.closers, closeStore)
	eng, err := engine.New(conn, cfg, engine.Options{Store: store, Logger: logger})
	if err != nil {
		w.Close()
		return nil, err
	}
	w.Engine = eng
	if err := w.seedIfEmpty(ctx, r, logger); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Workspace) seedIfEmpty(ctx context.Context, r repo.Repo, logger *slog.Logger) error {
	existing, err := r.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	logger.InfoContext(ctx, "seeding built-in catalog", "workspace", w.Dir)
	return w.Engine.SeedCatalog(ctx, catalog.Builtin())
}

// Close releases the cache backend and the database, last opened first.
func (w *Workspace) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}
