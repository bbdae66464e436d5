package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/friendsincode/parkbay/internal/config"
	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/server"
)

func testCore(t *testing.T) *server.Core {
	t.Helper()
	core, err := server.NewCore(&config.Config{
		Environment:   "test",
		DBBackend:     config.DatabaseSQLite,
		DBDSN:         ":memory:",
		JWTSigningKey: "test-secret",
		HourlyRate:    decimal.RequireFromString("5.00"),
		Currency:      "USD",
		SweepInterval: time.Minute,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func TestParseInventory(t *testing.T) {
	entries, err := parseInventory(strings.NewReader(`
slots:
  - code: A-01
    location: north deck
  - code: " V-01 "
    class: vip
`))
	if err != nil {
		t.Fatalf("parseInventory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Class != string(models.SlotClassGeneral) {
		t.Fatalf("expected default class GENERAL, got %q", entries[0].Class)
	}
	if entries[1].Code != "V-01" || entries[1].Class != "VIP" {
		t.Fatalf("expected trimmed V-01/VIP, got %q/%q", entries[1].Code, entries[1].Class)
	}
}

func TestParseInventoryRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "slots: []", "no slots"},
		{"missing code", "slots:\n  - location: x", "code is required"},
		{"unknown class", "slots:\n  - code: A-01\n    class: LIMO", "unknown class"},
		{"duplicate", "slots:\n  - code: A-01\n  - code: A-01", "duplicate"},
		{"unknown field", "slots:\n  - code: A-01\n    floor: 2", "parse inventory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseInventory(strings.NewReader(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestImportSlotsSkipsExisting(t *testing.T) {
	core := testCore(t)
	ctx := context.Background()

	if _, err := core.Engine.CreateSlot(ctx, "A-01", "north deck", models.SlotClassGeneral); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}

	entries := []slotEntry{
		{Code: "A-01", Class: "GENERAL"},
		{Code: "A-02", Location: "north deck", Class: "GENERAL"},
		{Code: "S-01", Class: "STAFF"},
	}

	dry, err := importSlots(ctx, core.Engine, core.Store.Slots, entries, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if dry.Created != 2 || dry.Skipped != 1 {
		t.Fatalf("dry run: expected 2 created / 1 skipped, got %+v", dry)
	}
	if _, err := core.Store.Slots.GetByCode(ctx, "A-02"); err == nil {
		t.Fatal("dry run must not write slots")
	}

	res, err := importSlots(ctx, core.Engine, core.Store.Slots, entries, false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Created != 2 || res.Skipped != 1 {
		t.Fatalf("expected 2 created / 1 skipped, got %+v", res)
	}
	slot, err := core.Store.Slots.GetByCode(ctx, "S-01")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if slot.Class != models.SlotClassStaff || slot.Status != models.SlotAvailable {
		t.Fatalf("unexpected slot %+v", slot)
	}

	again, err := importSlots(ctx, core.Engine, core.Store.Slots, entries, false)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if again.Created != 0 || again.Skipped != 3 {
		t.Fatalf("re-import should skip everything, got %+v", again)
	}
}

func TestCheckAndRepair(t *testing.T) {
	core := testCore(t)
	ctx := context.Background()

	slot, err := core.Engine.CreateSlot(ctx, "A-01", "", models.SlotClassGeneral)
	if err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	if err := core.Store.Slots.SetStatus(ctx, slot.ID, models.SlotOccupied, time.Now()); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	dry, err := checkAndRepair(ctx, core.Integrity, false)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if dry.Report.Total != 1 || len(dry.Repairs) != 0 {
		t.Fatalf("expected one finding and no repairs, got %+v", dry)
	}

	fixed, err := checkAndRepair(ctx, core.Integrity, true)
	if err != nil {
		t.Fatalf("check --repair: %v", err)
	}
	if len(fixed.Repairs) != 1 || !fixed.Repairs[0].Changed {
		t.Fatalf("expected one applied repair, got %+v", fixed.Repairs)
	}

	after, err := checkAndRepair(ctx, core.Integrity, false)
	if err != nil {
		t.Fatalf("re-check: %v", err)
	}
	if after.Report.Total != 0 {
		t.Fatalf("expected clean report after repair, got %+v", after.Report)
	}
}
