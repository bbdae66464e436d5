/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/parkbay/internal/booking"
	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/server"
	"github.com/friendsincode/parkbay/internal/store"
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Manage the slot inventory",
}

var slotsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import slots from a YAML inventory",
	Long: `Import slots from a YAML inventory file:

  slots:
    - code: A-01
      location: north deck
      class: GENERAL

Slots whose code already exists are skipped.`,
	RunE: runSlotsImport,
}

var (
	slotsFile   string
	slotsDryRun bool
)

func init() {
	rootCmd.AddCommand(slotsCmd)
	slotsCmd.AddCommand(slotsImportCmd)

	slotsImportCmd.Flags().StringVarP(&slotsFile, "file", "f", "", "Path to the YAML inventory (required)")
	slotsImportCmd.Flags().BoolVar(&slotsDryRun, "dry-run", false, "Validate the inventory without writing")
	_ = slotsImportCmd.MarkFlagRequired("file")
}

type slotInventory struct {
	Slots []slotEntry `yaml:"slots"`
}

type slotEntry struct {
	Code     string `yaml:"code"`
	Location string `yaml:"location"`
	Class    string `yaml:"class"`
}

type importResult struct {
	Created int
	Skipped int
}

// parseInventory decodes and validates an inventory. Codes must be unique
// within the file.
func parseInventory(r io.Reader) ([]slotEntry, error) {
	var inv slotInventory
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	if len(inv.Slots) == 0 {
		return nil, errors.New("inventory has no slots")
	}

	seen := make(map[string]int, len(inv.Slots))
	for i := range inv.Slots {
		e := &inv.Slots[i]
		e.Code = strings.TrimSpace(e.Code)
		e.Class = strings.ToUpper(strings.TrimSpace(e.Class))
		if e.Class == "" {
			e.Class = string(models.SlotClassGeneral)
		}
		if e.Code == "" {
			return nil, fmt.Errorf("slot %d: code is required", i+1)
		}
		if !models.SlotClass(e.Class).Valid() {
			return nil, fmt.Errorf("slot %s: unknown class %q", e.Code, e.Class)
		}
		if prev, dup := seen[e.Code]; dup {
			return nil, fmt.Errorf("slot %s: duplicate of entry %d", e.Code, prev)
		}
		seen[e.Code] = i + 1
	}
	return inv.Slots, nil
}

// importSlots creates every entry whose code is not yet registered.
func importSlots(ctx context.Context, engine *booking.Engine, slots *store.SlotStore, entries []slotEntry, dryRun bool) (importResult, error) {
	var res importResult
	for _, e := range entries {
		_, err := slots.GetByCode(ctx, e.Code)
		if err == nil {
			res.Skipped++
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return res, err
		}
		if dryRun {
			res.Created++
			continue
		}
		if _, err := engine.CreateSlot(ctx, e.Code, e.Location, models.SlotClass(e.Class)); err != nil {
			return res, fmt.Errorf("create slot %s: %w", e.Code, err)
		}
		res.Created++
	}
	return res, nil
}

func runSlotsImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	f, err := os.Open(slotsFile)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := parseInventory(f)
	if err != nil {
		return err
	}

	core, err := server.NewCore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = core.Close() }()

	res, err := importSlots(cmd.Context(), core.Engine, core.Store.Slots, entries, slotsDryRun)
	if err != nil {
		return err
	}

	logger.Info().
		Str("file", slotsFile).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Bool("dry_run", slotsDryRun).
		Msg("slot import finished")
	return nil
}
