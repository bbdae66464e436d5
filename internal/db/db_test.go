package db

import (
	"testing"

	"github.com/friendsincode/parkbay/internal/models"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	database, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Second run must be a no-op.
	if err := Migrate(database); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	for _, table := range []string{"slots", "reservations", "payments", "notifications"} {
		if !database.Migrator().HasTable(table) {
			t.Errorf("expected table %q after migration", table)
		}
	}

	if !database.Migrator().HasIndex(&models.Payment{}, "idx_payments_reservation_id") {
		t.Error("expected unique index on payments.reservation_id")
	}
}

func TestSQLitePoolIsSingleConnection(t *testing.T) {
	database, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer Close(database)

	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("DB(): %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}
}
