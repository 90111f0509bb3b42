// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olegiv/textpress-go/internal/model"
	"github.com/olegiv/textpress-go/internal/store"
)

func newUserCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserAddCmd(c))
	return cmd
}

func newUserAddCmd(c *cli) *cobra.Command {
	var username, password, email, role, display string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := model.ParseRole(role)
			if err != nil {
				return err
			}

			a, err := openApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, sess := a.engine.Enter(cmd.Context())
			defer func() { _ = store.Remove(ctx) }()

			_, err = a.models.Users.ByUsername(ctx, username)
			switch {
			case err == nil:
				return fmt.Errorf("user %q already exists", username)
			case !errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("looking up user: %w", err)
			}

			user, err := a.models.NewUser(ctx, func(u *model.User) error {
				u.Username = username
				u.Email = email
				u.Role = r
				u.DisplayFormat = display
				return u.SetPassword(password)
			})
			if err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			if err := sess.Commit(ctx); err != nil {
				return fmt.Errorf("creating user: %w", err)
			}

			c.logger.Info("created user", "id", user.ID, "username", user.Username, "role", user.Role)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (id %d)\n", user.Role, user.Username, user.ID)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&username, "username", "", "login name")
	f.StringVar(&password, "password", "", "password")
	f.StringVar(&email, "email", "", "email address")
	f.StringVar(&role, "role", model.RoleAuthor.String(), "role: subscriber, author, editor or admin")
	f.StringVar(&display, "display-name", model.DefaultDisplayFormat, "display name format ($nick, $first, $last)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
