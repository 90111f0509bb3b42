// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/olegiv/textpress-go/internal/cache"
	"github.com/olegiv/textpress-go/internal/store"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// pinger is implemented by cache backends that can check their connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	engine    *store.Engine
	cache     cache.Cache
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler. c may be nil.
func NewHealthHandler(engine *store.Engine, c cache.Cache, version string) *HealthHandler {
	return &HealthHandler{
		engine:    engine,
		cache:     c,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents a single health check result.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health handles GET /health. The database check decides the status code;
// a failing Redis cache only shows up in the checks.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		Checks: map[string]Check{
			"database": h.checkDatabase(ctx),
		},
	}
	if c, ok := h.checkCache(ctx); ok {
		status.Checks["cache"] = c
	}

	code := http.StatusOK
	if status.Checks["database"].Status != statusHealthy {
		status.Status = statusUnhealthy
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// Liveness handles GET /health/live.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) Check {
	start := time.Now()
	err := h.engine.SQL().PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return Check{
			Status:  statusUnhealthy,
			Message: "database ping failed",
		}
	}
	return Check{
		Status:  statusHealthy,
		Latency: latency.Round(time.Microsecond).String(),
	}
}

func (h *HealthHandler) checkCache(ctx context.Context) (Check, bool) {
	p, ok := h.cache.(pinger)
	if !ok {
		return Check{}, false
	}
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: statusUnhealthy, Message: "cache ping failed"}, true
	}
	return Check{
		Status:  statusHealthy,
		Latency: time.Since(start).Round(time.Microsecond).String(),
	}, true
}
