// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/olegiv/textpress-go/internal/store"
)

// Default admin credentials
const (
	DefaultAdminUsername = "admin"
	DefaultAdminEmail    = "admin@example.com"
	DefaultAdminPassword = "changeme"
)

// EnsureAdmin creates the default administrator unless an admin user
// already exists. It reports whether a user was created. The session of ctx
// is committed on success.
func EnsureAdmin(ctx context.Context, m *Managers) (bool, error) {
	_, err := m.Users.Admins(ctx).First()
	if err == nil {
		slog.Info("admin user already exists, skipping seed")
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("checking for admin user: %w", err)
	}

	user, err := m.NewUser(ctx, func(u *User) error {
		u.Username = DefaultAdminUsername
		u.Email = DefaultAdminEmail
		u.Role = RoleAdmin
		u.DisplayFormat = DefaultDisplayFormat
		return u.SetPassword(DefaultAdminPassword)
	})
	if err != nil {
		return false, fmt.Errorf("creating admin user: %w", err)
	}

	sess, err := store.MustFromContext(ctx)
	if err != nil {
		return false, err
	}
	if err := sess.Commit(ctx); err != nil {
		return false, fmt.Errorf("creating admin user: %w", err)
	}

	slog.Info("created default admin user",
		"id", user.ID,
		"username", user.Username,
		"password", DefaultAdminPassword,
	)
	return true, nil
}
