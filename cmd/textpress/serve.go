// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/olegiv/textpress-go/internal/cache"
	"github.com/olegiv/textpress-go/internal/handler"
	"github.com/olegiv/textpress-go/internal/middleware"
	"github.com/olegiv/textpress-go/internal/model"
	"github.com/olegiv/textpress-go/internal/scheduler"
	"github.com/olegiv/textpress-go/internal/webhook"
)

const logCacheInit = "cache initialized"

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	a, err := openApp(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ensureAdmin(ctx); err != nil {
		return err
	}

	cacheResult, err := cache.New(cache.Config{
		RedisURL:         c.cfg.RedisURL,
		Prefix:           c.cfg.CachePrefix,
		DefaultTTL:       c.cfg.CacheTTLDuration(),
		MaxSize:          c.cfg.CacheMaxSize,
		CleanupInterval:  time.Minute,
		FallbackToMemory: true,
	})
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() { _ = cacheResult.Cache.Close() }()
	switch {
	case cacheResult.Backend == cache.BackendRedis:
		c.logger.Info(logCacheInit, "backend", "redis", "url", cache.SanitizeRedisURL(c.cfg.RedisURL))
	case cacheResult.IsFallback:
		c.logger.Warn(logCacheInit, "backend", "memory", "note", "Redis unavailable, using fallback")
	default:
		c.logger.Info(logCacheInit, "backend", "memory")
	}

	var jobs *handler.JobsHandler
	if c.cfg.ExportEnabled() {
		sched := scheduler.New(c.logger)
		job := scheduler.NewExportJob(a.engine, a.models, a.blog(), c.cfg.ExportDir, c.cfg.ExportKeep, c.logger, a.writerOptions()...)
		if len(c.cfg.WebhookURLs) > 0 {
			dispatcher := webhook.NewDispatcher(c.webhookEndpoints(), c.logger, webhook.DefaultConfig())
			dispatcher.Start(ctx)
			defer dispatcher.Stop()
			job.SetNotifier(dispatcher)
		}
		if err := job.Register(sched, c.cfg.ExportSchedule); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
		jobs = handler.NewJobsHandler(sched)
	}

	stats := model.NewStats(a.models, cacheResult.Cache, c.cfg.CacheTTLDuration())
	router := handler.NewRouter(handler.RouterConfig{
		Engine:        a.engine,
		Managers:      a.models,
		Health:        handler.NewHealthHandler(a.engine, cacheResult.Cache, versionInfo().Short()),
		Export:        handler.NewExportHandler(a.models, a.blog(), a.writerOptions()...),
		Stats:         handler.NewStatsHandler(stats),
		Jobs:          jobs,
		RateLimiter:   middleware.NewRateLimiter(c.cfg.ExportRate, c.cfg.ExportBurst, c.cfg.TrustProxy),
		IsDevelopment: c.cfg.IsDevelopment(),
		RequestLog:    c.cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:              c.cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("starting server", "addr", srv.Addr, "version", versionInfo().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}

	c.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	c.logger.Info("server stopped")
	return nil
}

func (c *cli) webhookEndpoints() []webhook.Endpoint {
	endpoints := make([]webhook.Endpoint, 0, len(c.cfg.WebhookURLs))
	for _, u := range c.cfg.WebhookURLs {
		endpoints = append(endpoints, webhook.Endpoint{URL: u, Secret: c.cfg.WebhookSecret})
	}
	return endpoints
}
