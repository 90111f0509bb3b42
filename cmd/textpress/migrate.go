// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import "github.com/spf13/cobra"

func newMigrateCmd(c *cli) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if !seed {
				return nil
			}
			return a.ensureAdmin(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "create the default admin user when no admin exists")
	return cmd
}
