// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/olegiv/textpress-go/internal/config"
	"github.com/olegiv/textpress-go/internal/logging"
	"github.com/olegiv/textpress-go/internal/model"
	"github.com/olegiv/textpress-go/internal/store"
	"github.com/olegiv/textpress-go/internal/tpxa"
)

// app is an opened, migrated database with the models mapped onto it.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *store.Engine
	models *model.Managers
}

func openApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if cfg.DBDriver == config.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	logger.Info("initializing database", "driver", cfg.DBDriver)
	engine, err := store.Open(cfg.DBDriver, cfg.DataSource(),
		store.WithLogger(logging.NewGormLogger(logger, cfg.SlowQueryThreshold())),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	logger.Info("running database migrations")
	if err := store.Migrate(engine); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	models, err := model.Setup(store.NewMapper(engine))
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("mapping models: %w", err)
	}
	logger.Info("database ready")

	return &app{cfg: cfg, logger: logger, engine: engine, models: models}, nil
}

func (a *app) Close() {
	if err := a.engine.Close(); err != nil {
		a.logger.Error("error closing database connection", "error", err)
	}
}

func (a *app) blog() tpxa.Blog {
	return tpxa.Blog{
		Title:   a.cfg.Blog.Title,
		Tagline: a.cfg.Blog.Tagline,
		URL:     a.cfg.Blog.URL,
	}
}

func (a *app) writerOptions() []tpxa.Option {
	return []tpxa.Option{
		tpxa.WithLogger(a.logger),
		tpxa.WithVersion(versionInfo().Short()),
	}
}

// ensureAdmin creates the default administrator in a scope of its own.
func (a *app) ensureAdmin(ctx context.Context) error {
	ctx, _ = a.engine.Enter(ctx)
	defer func() { _ = store.Remove(ctx) }()

	if _, err := model.EnsureAdmin(ctx, a.models); err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}
	return nil
}
