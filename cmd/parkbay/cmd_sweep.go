/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/parkbay/internal/server"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one lifecycle sweep and print its report",
	Long:  "Activates, completes and cancels due reservations and sends pending reminders once, then exits. Safe to run alongside a serving instance.",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	core, err := server.NewCore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	report, sweepErr := core.Sweeper.RunSweep(cmd.Context())

	if err := writeIndented(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if sweepErr != nil {
		return fmt.Errorf("sweep: %w", sweepErr)
	}
	return nil
}
