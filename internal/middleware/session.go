// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"

	"github.com/olegiv/textpress-go/internal/store"
)

// Session runs every request in a database session scope of its own. The
// session is removed when the handler returns, rolling back whatever the
// handler left uncommitted.
func Session(engine *store.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, _ := engine.Enter(r.Context())
			defer func() {
				if err := store.Remove(ctx); err != nil {
					slog.Warn("closing request session failed", "path", r.URL.Path, "error", err)
				}
			}()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
