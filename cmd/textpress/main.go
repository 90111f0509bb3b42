// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Command textpress runs the TextPress blog server and its maintenance
// tasks.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/olegiv/textpress-go/internal/config"
	"github.com/olegiv/textpress-go/internal/logging"
	"github.com/olegiv/textpress-go/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = version.DevVersion
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func versionInfo() version.Info {
	return version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}
}

// cli holds what the persistent pre-run hook prepared for the subcommands.
type cli struct {
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "textpress",
		Short:         "TextPress blog engine",
		Long:          "TextPress serves a blog from a SQL database and exports it as TPXA (TextPress eXtended Atom).",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(
		newServeCmd(c),
		newExportCmd(c),
		newMigrateCmd(c),
		newUserCmd(c),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and installs the logger.
func (c *cli) setup(cmd *cobra.Command) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && cmd.Flags().Changed("env-file") {
			return fmt.Errorf("loading %s: %w", c.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.cfg = cfg
	c.logger = logging.Setup(cmd.ErrOrStderr(), cfg.LogLevel)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}
