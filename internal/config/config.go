/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string

	// Pricing
	HourlyRate decimal.Decimal
	Currency   string

	// Lifecycle sweep
	SweepEnabled  bool
	SweepInterval time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// Notification sinks (each optional)
	RedisNotifyChannel string // publish lifecycle events on this Redis channel
	NATSURL            string
	NATSSubjectPrefix  string
	WebhookURL         string
	WebhookSecret      string

	// Cross-instance event relay for the websocket stream: "", "redis" or "nats"
	EventRelay        string
	EventRelaySubject string
}

// Load reads an optional .env file and environment variables, applies
// defaults, and validates the result.
func Load() (*Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	rate, err := decimal.NewFromString(getEnvAny([]string{"PARKBAY_HOURLY_RATE"}, "5.00"))
	if err != nil {
		return nil, fmt.Errorf("PARKBAY_HOURLY_RATE: %w", err)
	}

	cfg := &Config{
		Environment:   getEnvAny([]string{"PARKBAY_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"PARKBAY_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"PARKBAY_HTTP_PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"PARKBAY_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:         getEnvAny([]string{"PARKBAY_DB_DSN", "DATABASE_URL"}, ""),
		JWTSigningKey: getEnvAny([]string{"PARKBAY_JWT_SIGNING_KEY"}, ""),

		HourlyRate: rate,
		Currency:   strings.ToUpper(getEnvAny([]string{"PARKBAY_CURRENCY"}, "USD")),

		SweepEnabled:  getEnvBoolAny([]string{"PARKBAY_SWEEP_ENABLED"}, true),
		SweepInterval: getEnvDurationAny([]string{"PARKBAY_SWEEP_INTERVAL"}, 5*time.Minute),

		TracingEnabled:    getEnvBoolAny([]string{"PARKBAY_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"PARKBAY_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"PARKBAY_TRACING_SAMPLE_RATE"}, 1.0),

		LeaderElectionEnabled: getEnvBoolAny([]string{"PARKBAY_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"PARKBAY_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"PARKBAY_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"PARKBAY_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"PARKBAY_INSTANCE_ID"}, ""),

		RedisNotifyChannel: getEnvAny([]string{"PARKBAY_REDIS_NOTIFY_CHANNEL"}, ""),
		NATSURL:            getEnvAny([]string{"PARKBAY_NATS_URL"}, ""),
		NATSSubjectPrefix:  getEnvAny([]string{"PARKBAY_NATS_SUBJECT_PREFIX"}, "parkbay.reservations"),
		WebhookURL:         getEnvAny([]string{"PARKBAY_WEBHOOK_URL"}, ""),
		WebhookSecret:      getEnvAny([]string{"PARKBAY_WEBHOOK_SECRET"}, ""),

		EventRelay:        strings.ToLower(getEnvAny([]string{"PARKBAY_EVENT_RELAY"}, "")),
		EventRelaySubject: getEnvAny([]string{"PARKBAY_EVENT_RELAY_SUBJECT"}, "parkbay.events"),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("PARKBAY_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("PARKBAY_JWT_SIGNING_KEY must be provided")
	}

	if !cfg.HourlyRate.IsPositive() {
		return nil, fmt.Errorf("PARKBAY_HOURLY_RATE must be positive, got %s", cfg.HourlyRate)
	}

	if len(cfg.Currency) != 3 {
		return nil, fmt.Errorf("PARKBAY_CURRENCY must be a 3-letter code, got %q", cfg.Currency)
	}

	if cfg.SweepInterval < time.Minute {
		return nil, fmt.Errorf("PARKBAY_SWEEP_INTERVAL must be at least 1m, got %s", cfg.SweepInterval)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.WebhookURL != "" && cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("PARKBAY_WEBHOOK_SECRET is required when a webhook is configured in production")
	}

	switch cfg.EventRelay {
	case "", "redis":
	case "nats":
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("PARKBAY_NATS_URL is required for the nats event relay")
		}
	default:
		return nil, fmt.Errorf("unsupported event relay %q", cfg.EventRelay)
	}

	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("90s", "5m") or a bare number of minutes.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
		if minutes, err := strconv.Atoi(v); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return def
}
