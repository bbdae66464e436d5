package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PARKBAY_DB_DSN", "file::memory:")
	t.Setenv("PARKBAY_DB_BACKEND", "sqlite")
	t.Setenv("PARKBAY_JWT_SIGNING_KEY", "supersecret")
}

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	setRequired(t)
	t.Setenv("PARKBAY_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("unexpected backend: %q", cfg.DBBackend)
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
	if cfg.HourlyRate.String() != "5" {
		t.Fatalf("default hourly rate = %s, want 5", cfg.HourlyRate)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("default sweep interval = %s, want 5m", cfg.SweepInterval)
	}
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	t.Setenv("PARKBAY_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("PARKBAY_DB_DSN", "")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DSN is missing")
	}
}

func TestLoadHourlyRate(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "decimal", value: "7.50", want: "7.5"},
		{name: "integer", value: "3", want: "3"},
		{name: "zero rejected", value: "0", wantErr: true},
		{name: "negative rejected", value: "-1", wantErr: true},
		{name: "garbage rejected", value: "five", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("PARKBAY_HOURLY_RATE", tt.value)

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for rate %q", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("load config: %v", err)
			}
			if cfg.HourlyRate.String() != tt.want {
				t.Fatalf("rate = %s, want %s", cfg.HourlyRate, tt.want)
			}
		})
	}
}

func TestLoadSweepIntervalForms(t *testing.T) {
	setRequired(t)
	t.Setenv("PARKBAY_SWEEP_INTERVAL", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SweepInterval != 10*time.Minute {
		t.Fatalf("bare minutes: got %s", cfg.SweepInterval)
	}

	t.Setenv("PARKBAY_SWEEP_INTERVAL", "30s")
	if _, err := Load(); err == nil {
		t.Fatal("expected sub-minute sweep interval to be rejected")
	}
}

func TestLoadProductionRequiresWebhookSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("PARKBAY_ENV", "production")
	t.Setenv("PARKBAY_WEBHOOK_URL", "https://hooks.example.com/parkbay")
	t.Setenv("PARKBAY_WEBHOOK_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without webhook secret")
	}

	t.Setenv("PARKBAY_WEBHOOK_SECRET", "s3cret")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config with webhook secret to load: %v", err)
	}
}

func TestLoadEventRelay(t *testing.T) {
	tests := []struct {
		name    string
		relay   string
		natsURL string
		wantErr bool
	}{
		{name: "disabled", relay: ""},
		{name: "redis", relay: "redis"},
		{name: "nats with url", relay: "NATS", natsURL: "nats://localhost:4222"},
		{name: "nats without url", relay: "nats", wantErr: true},
		{name: "unknown", relay: "kafka", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("PARKBAY_EVENT_RELAY", tt.relay)
			t.Setenv("PARKBAY_NATS_URL", tt.natsURL)

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("load config: %v", err)
			}
			if cfg.EventRelaySubject != "parkbay.events" {
				t.Fatalf("default relay subject = %q", cfg.EventRelaySubject)
			}
		})
	}
}
