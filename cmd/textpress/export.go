// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olegiv/textpress-go/internal/store"
	"github.com/olegiv/textpress-go/internal/tpxa"
)

func newExportCmd(c *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a TPXA export of the blog",
		Long:  "Write a TPXA export of the blog to a file, or to standard output when no file is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, _ := a.engine.Enter(cmd.Context())
			defer func() { _ = store.Remove(ctx) }()

			w := tpxa.NewWriter(a.models, a.blog(), a.writerOptions()...)
			if output == "" || output == "-" {
				_, err = w.WriteTo(ctx, cmd.OutOrStdout())
			} else {
				err = w.WriteToFile(ctx, output)
			}
			if err != nil {
				return fmt.Errorf("exporting: %w", err)
			}
			if output != "" && output != "-" {
				c.logger.Info("export written", "path", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write the export to (default: standard output)")
	return cmd
}
