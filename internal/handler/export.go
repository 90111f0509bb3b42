// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/olegiv/textpress-go/internal/model"
	"github.com/olegiv/textpress-go/internal/tpxa"
)

// ExportHandler streams TPXA exports.
type ExportHandler struct {
	managers *model.Managers
	blog     tpxa.Blog
	opts     []tpxa.Option
	now      func() time.Time
}

// NewExportHandler creates an export handler. opts are passed to every
// writer it creates.
func NewExportHandler(m *model.Managers, blog tpxa.Blog, opts ...tpxa.Option) *ExportHandler {
	return &ExportHandler{
		managers: m,
		blog:     blog,
		opts:     opts,
		now:      time.Now,
	}
}

// Export handles GET /export. The response is committed with the first
// chunk; a failure before it yields a 500, a failure after it aborts the
// connection.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	writer := tpxa.NewWriter(h.managers, h.blog, h.opts...)
	rc := http.NewResponseController(w)

	started := false
	var written int64
	for chunk, err := range writer.Chunks(r.Context()) {
		if err != nil {
			if !started {
				logAndInternalError(w, "export failed", "error", err)
				return
			}
			slog.Error("export aborted mid-stream", "error", err, "bytes", written)
			panic(http.ErrAbortHandler)
		}

		if !started {
			started = true
			w.Header().Set("Content-Type", tpxa.ContentType)
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, h.filename()))
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusOK)
		}

		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			slog.Warn("export client went away", "error", err, "bytes", written)
			return
		}
		_ = rc.Flush()
	}

	slog.Info("export downloaded", "bytes", written, "user", userName(r))
}

func (h *ExportHandler) filename() string {
	return "textpress-" + h.now().UTC().Format("20060102-150405") + ".tpxa.xml"
}
