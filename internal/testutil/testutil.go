// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers for the TextPress packages.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/olegiv/textpress-go/internal/store"
)

// TestLogger creates a silent test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// TestLoggerSilent creates a completely silent test logger (error level only).
func TestLoggerSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// TestEngine creates a temporary SQLite database with core migrations applied.
// Returns the engine and a cleanup function that should be deferred.
func TestEngine(t *testing.T) (*store.Engine, func()) {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "textpress-test-*.db")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	dbPath := f.Name()
	_ = f.Close()

	engine, err := store.Open(store.DriverSQLite, dbPath)
	if err != nil {
		_ = os.Remove(dbPath)
		t.Fatalf("Open: %v", err)
	}

	if err := store.Migrate(engine); err != nil {
		_ = engine.Close()
		_ = os.Remove(dbPath)
		t.Fatalf("Migrate: %v", err)
	}

	return engine, func() {
		_ = engine.Close()
		_ = os.Remove(dbPath)
	}
}

// TestScope enters a session scope on engine that is removed when the test
// ends.
func TestScope(t *testing.T, engine *store.Engine) (context.Context, *store.Session) {
	t.Helper()
	ctx, sess := engine.Enter(context.Background())
	t.Cleanup(func() { _ = store.Remove(ctx) })
	return ctx, sess
}
