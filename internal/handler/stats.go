// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/olegiv/textpress-go/internal/middleware"
	"github.com/olegiv/textpress-go/internal/model"
)

const (
	defaultArchiveLimit = 6
	maxStatsLimit       = 500
)

// StatsHandler serves the tag cloud and archive summary.
type StatsHandler struct {
	stats *model.Stats
}

// NewStatsHandler creates a statistics handler.
func NewStatsHandler(stats *model.Stats) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// TagCloud handles GET /api/tagcloud?limit=N. A limit of 0 returns every
// tag.
func (h *StatsHandler) TagCloud(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 0)
	if !ok {
		return
	}

	cloud, err := h.stats.TagCloud(r.Context(), limit)
	if err != nil {
		logAndInternalError(w, "tag cloud failed", "error", err)
		return
	}
	writeJSONSuccess(w, map[string]any{"tags": cloud})
}

// Archive handles GET /api/archive?detail=months&limit=N.
func (h *StatsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultArchiveLimit)
	if !ok {
		return
	}
	detail := r.URL.Query().Get("detail")
	if detail == "" {
		detail = model.ArchiveMonths
	}

	summary, err := h.stats.PostArchiveSummary(r.Context(), detail, limit)
	if errors.Is(err, model.ErrInvalidArchiveQuery) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logAndInternalError(w, "archive summary failed", "error", err)
		return
	}
	writeJSONSuccess(w, map[string]any{"archive": summary})
}

// InvalidateCache handles DELETE /api/cache.
func (h *StatsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.stats.Invalidate(r.Context()); err != nil {
		logAndInternalError(w, "invalidating statistics cache failed", "error", err)
		return
	}
	writeJSONSuccess(w, map[string]any{"invalidated_by": userName(r)})
}

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxStatsLimit {
		writeJSONError(w, http.StatusBadRequest, "limit must be between 0 and "+strconv.Itoa(maxStatsLimit))
		return 0, false
	}
	return n, true
}

func userName(r *http.Request) string {
	if u := middleware.GetUser(r); u != nil {
		return u.Username
	}
	return ""
}
