// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/olegiv/textpress-go/internal/auth"
	"github.com/olegiv/textpress-go/internal/model"
	"github.com/olegiv/textpress-go/internal/store"
)

// Realm is announced in basic auth challenges.
const Realm = "TextPress"

// RequireRole creates middleware that authenticates the request with HTTP
// basic auth against the users table and requires at least role. It must
// run inside Session. Hashes with outdated parameters are upgraded on a
// successful login.
func RequireRole(users *model.UserManager, role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				challenge(w)
				return
			}

			user, err := users.ByUsername(r.Context(), username)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				slog.Error("loading user for authentication", "username", username, "error", err)
				WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error")
				return
			}
			if user == nil || !user.CheckPassword(password) {
				slog.Warn("authentication failed", "username", username, "path", r.URL.Path)
				challenge(w)
				return
			}
			if !user.HasRole(role) {
				slog.Warn("insufficient role", "username", username, "role", user.Role, "required", role)
				WriteAPIError(w, http.StatusForbidden, "forbidden", "Insufficient permissions")
				return
			}

			if auth.NeedsRehash(user.PasswordHash) {
				upgradeHash(r.Context(), user, password)
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin is RequireRole for administrators.
func RequireAdmin(users *model.UserManager) func(http.Handler) http.Handler {
	return RequireRole(users, model.RoleAdmin)
}

func challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`", charset="UTF-8"`)
	WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
}

// upgradeHash rehashes the password of user with the current parameters.
// Failures are logged; the request goes on either way.
func upgradeHash(ctx context.Context, user *model.User, password string) {
	sess, err := store.MustFromContext(ctx)
	if err != nil {
		return
	}
	if err := user.SetPassword(password); err != nil {
		slog.Warn("rehashing password failed", "username", user.Username, "error", err)
		return
	}
	if err := sess.Add(user); err != nil {
		slog.Warn("rehashing password failed", "username", user.Username, "error", err)
		return
	}
	if err := sess.Commit(ctx); err != nil {
		slog.Warn("storing rehashed password failed", "username", user.Username, "error", err)
		return
	}
	slog.Info("upgraded password hash", "username", user.Username)
}
