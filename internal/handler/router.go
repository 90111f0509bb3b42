// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/textpress-go/internal/middleware"
	"github.com/olegiv/textpress-go/internal/model"
	"github.com/olegiv/textpress-go/internal/store"
)

// Routes.
const (
	RouteHealth     = "/health"
	RouteHealthLive = "/health/live"
	RouteExport     = "/export"
	RouteExportTPXA = "/export.tpxa"
	RouteTagCloud   = "/api/tagcloud"
	RouteArchive    = "/api/archive"
	RouteCache      = "/api/cache"
	RouteJobs       = "/api/jobs"
	RouteJobRun     = "/api/jobs/{name}/run"
)

// apiTimeout bounds the JSON API requests. Exports are not bounded.
const apiTimeout = 30 * time.Second

// RouterConfig holds everything NewRouter wires together.
type RouterConfig struct {
	Engine        *store.Engine
	Managers      *model.Managers
	Health        *HealthHandler
	Export        *ExportHandler
	Stats         *StatsHandler
	// Jobs is nil when no scheduler runs.
	Jobs          *JobsHandler
	RateLimiter   *middleware.RateLimiter
	IsDevelopment bool
	// RequestLog enables chi's request logger.
	RequestLog bool
}

// NewRouter builds the HTTP routes of the server.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if cfg.RequestLog {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)
	r.Use(middleware.SecurityHeaders(cfg.IsDevelopment))

	r.Get(RouteHealth, cfg.Health.Health)
	r.Get(RouteHealthLive, cfg.Health.Liveness)

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware())
		}
		r.Use(middleware.Session(cfg.Engine))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(cfg.Managers.Users))
			r.Get(RouteExport, cfg.Export.Export)
			r.Get(RouteExportTPXA, cfg.Export.Export)
		})

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(apiTimeout))
			r.Get(RouteTagCloud, cfg.Stats.TagCloud)
			r.Get(RouteArchive, cfg.Stats.Archive)
			r.With(middleware.RequireAdmin(cfg.Managers.Users)).Delete(RouteCache, cfg.Stats.InvalidateCache)
		})

		if cfg.Jobs != nil {
			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(apiTimeout))
				r.Use(middleware.RequireAdmin(cfg.Managers.Users))
				r.Get(RouteJobs, cfg.Jobs.List)
				r.Post(RouteJobRun, cfg.Jobs.Run)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
