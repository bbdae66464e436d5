package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/parkbay/internal/clock"
	"github.com/friendsincode/parkbay/internal/db"
	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func openAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func waitForEntries(t *testing.T, svc *Service, want int) []models.AuditLog {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		logs, total, err := svc.Query(context.Background(), QueryFilters{})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if int(total) >= want {
			return logs
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d audit entries, got %d", want, total)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartRecordsPublishedEvents(t *testing.T) {
	database := openAuditTestDB(t)
	bus := events.NewBus()
	svc := NewService(database, bus, clock.NewFake(t0), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	bus.Publish(events.EventAuditSlotStatus, events.Payload{
		"user_id":       "ops",
		"resource_type": "slot",
		"resource_id":   "slot-1",
		"ip_address":    "10.0.0.1",
		"status":        "MAINTENANCE",
	})
	// Lifecycle events are not audited.
	bus.Publish(events.EventReservationConfirmed, events.Payload{"user_id": "alice"})

	logs := waitForEntries(t, svc, 1)
	entry := logs[0]
	if entry.Action != models.AuditActionSlotStatus {
		t.Fatalf("expected slot.status, got %s", entry.Action)
	}
	if entry.UserID != "ops" || entry.ResourceID != "slot-1" || entry.IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Details["status"] != "MAINTENANCE" {
		t.Fatalf("expected status in details, got %+v", entry.Details)
	}
	if _, ok := entry.Details["user_id"]; ok {
		t.Fatal("extracted fields must not be repeated in details")
	}
	if !entry.Timestamp.Equal(t0) {
		t.Fatalf("expected timestamp from clock, got %v", entry.Timestamp)
	}

	cancel()
	select {
	case <-svc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("audit service did not stop")
	}
}

func TestQueryFilters(t *testing.T) {
	database := openAuditTestDB(t)
	svc := NewService(database, events.NewBus(), clock.NewFake(t0), zerolog.Nop())
	ctx := context.Background()

	seed := []models.AuditLog{
		{UserID: "ops", Action: models.AuditActionSlotCreate, Timestamp: t0},
		{UserID: "ops", Action: models.AuditActionSweepRun, Timestamp: t0.Add(time.Hour)},
		{UserID: "root", Action: models.AuditActionSweepRun, Timestamp: t0.Add(2 * time.Hour)},
	}
	for i := range seed {
		if err := svc.Log(ctx, &seed[i]); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	tests := []struct {
		name    string
		filters QueryFilters
		want    int
		first   string
	}{
		{"all newest first", QueryFilters{}, 3, "root"},
		{"by user", QueryFilters{UserID: "ops"}, 2, "ops"},
		{"by action", QueryFilters{Action: models.AuditActionSweepRun}, 2, "root"},
		{"time range", QueryFilters{From: t0.Add(30 * time.Minute), To: t0.Add(2 * time.Hour)}, 1, "ops"},
		{"paged", QueryFilters{Limit: 1, Offset: 1}, 3, "ops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, total, err := svc.Query(ctx, tt.filters)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if int(total) != tt.want {
				t.Fatalf("expected total %d, got %d", tt.want, total)
			}
			if len(logs) == 0 || logs[0].UserID != tt.first {
				t.Fatalf("expected first entry by %s, got %+v", tt.first, logs)
			}
		})
	}
}
