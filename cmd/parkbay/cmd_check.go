/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/friendsincode/parkbay/internal/integrity"
	"github.com/friendsincode/parkbay/internal/server"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Scan booking data for inconsistent state",
	Long:  "Reports slots held without a live booking, unpaid confirmations, missing payments and overlapping bookings. With --repair, safe findings are fixed.",
	RunE:  runCheck,
}

var checkRepair bool

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkRepair, "repair", false, "Repair findings that can be fixed automatically")
}

type checkOutput struct {
	Report  *integrity.Report        `json:"report"`
	Repairs []integrity.RepairResult `json:"repairs,omitempty"`
}

// checkAndRepair scans once and, when repair is set, repairs every
// repairable finding.
func checkAndRepair(ctx context.Context, svc *integrity.Service, repair bool) (checkOutput, error) {
	report, err := svc.Scan(ctx)
	if err != nil {
		return checkOutput{}, err
	}
	out := checkOutput{Report: report}
	if !repair {
		return out, nil
	}
	for _, f := range report.Findings {
		if !f.Repairable {
			continue
		}
		res, err := svc.Repair(ctx, integrity.RepairInput{Type: f.Type, ResourceID: f.ResourceID})
		if err != nil {
			return out, fmt.Errorf("repair %s: %w", f.ID, err)
		}
		out.Repairs = append(out.Repairs, res)
	}
	return out, nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	core, err := server.NewCore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	out, checkErr := checkAndRepair(cmd.Context(), core.Integrity, checkRepair)
	if out.Report != nil {
		if err := writeIndented(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	}
	return checkErr
}
