// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/textpress-go/internal/scheduler"
)

// JobsHandler lists the scheduled jobs and runs them on demand.
type JobsHandler struct {
	scheduler *scheduler.Scheduler
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(s *scheduler.Scheduler) *JobsHandler {
	return &JobsHandler{scheduler: s}
}

type jobResponse struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	Running     bool       `json:"running"`
}

// List handles GET /api/jobs.
func (h *JobsHandler) List(w http.ResponseWriter, _ *http.Request) {
	jobs := h.scheduler.Jobs()
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResponse{
			Name:        j.Name,
			Description: j.Description,
			Schedule:    j.Schedule,
			LastRun:     timeOrNil(j.LastRun),
			NextRun:     timeOrNil(j.NextRun),
			Running:     j.Running,
		})
	}
	writeJSONSuccess(w, map[string]any{"jobs": out})
}

// Run handles POST /api/jobs/{name}/run. The job runs in the background;
// the response only reports that it started.
func (h *JobsHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := h.scheduler.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeJSONError(w, http.StatusNotFound, "unknown job")
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		writeJSONError(w, http.StatusConflict, "job is already running")
		return
	case err != nil:
		logAndInternalError(w, "triggering job failed", "job", name, "error", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":      true,
		"job":          name,
		"triggered_by": userName(r),
	})
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
