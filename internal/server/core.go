/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/parkbay/internal/audit"
	"github.com/friendsincode/parkbay/internal/booking"
	"github.com/friendsincode/parkbay/internal/clock"
	"github.com/friendsincode/parkbay/internal/config"
	"github.com/friendsincode/parkbay/internal/db"
	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/integrity"
	"github.com/friendsincode/parkbay/internal/notify"
	"github.com/friendsincode/parkbay/internal/store"
	"github.com/friendsincode/parkbay/internal/sweep"
)

// Core is the booking engine with its persistence, notification sinks and
// sweeper, without the HTTP surface. The CLI uses it directly.
type Core struct {
	DB         *gorm.DB
	Store      *store.Store
	Bus        *events.Bus
	Dispatcher *notify.Dispatcher
	Engine     *booking.Engine
	Sweeper    *sweep.Sweeper
	Integrity  *integrity.Service
	Audit      *audit.Service

	closers []func() error
}

// NewCore connects the database, migrates it and wires the engine.
func NewCore(cfg *config.Config, logger zerolog.Logger) (*Core, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c := &Core{DB: database}
	c.deferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	c.Store = store.New(database)
	c.Bus = events.NewBus()

	c.Dispatcher, err = c.buildDispatcher(cfg, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	clk := clock.Real{}
	c.Engine = booking.New(c.Store, clk, c.Dispatcher, booking.DefaultPolicy(cfg.HourlyRate, cfg.Currency), logger)
	c.Sweeper = sweep.New(c.Engine, c.Store, clk, sweep.Config{Interval: cfg.SweepInterval}, logger)
	c.Sweeper.SetBus(c.Bus)
	c.Integrity = integrity.NewService(c.Store, clk, logger)
	c.Audit = audit.NewService(database, c.Bus, clk, logger)

	logger.Info().
		Str("db_backend", string(cfg.DBBackend)).
		Strs("sinks", c.Dispatcher.Sinks()).
		Str("hourly_rate", cfg.HourlyRate.StringFixed(2)).
		Str("currency", cfg.Currency).
		Msg("booking engine ready")
	return c, nil
}

// buildDispatcher always logs, stores and republishes events; Redis, NATS
// and webhook delivery are added when configured.
func (c *Core) buildDispatcher(cfg *config.Config, logger zerolog.Logger) (*notify.Dispatcher, error) {
	d := notify.NewDispatcher(logger,
		notify.NewLogSink(logger),
		notify.NewStoreSink(c.Store.Notifications),
		notify.NewBusSink(c.Bus),
	)

	if cfg.RedisNotifyChannel != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		c.deferClose(client.Close)
		d.Add(notify.NewRedisSink(client, cfg.RedisNotifyChannel))
	}

	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.NATSURL, "parkbay")
		if err != nil {
			return nil, err
		}
		c.deferClose(func() error {
			nc.Close()
			return nil
		})
		d.Add(notify.NewNATSSink(nc, cfg.NATSSubjectPrefix))
	}

	if cfg.WebhookURL != "" {
		d.Add(notify.NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret))
	}

	return d, nil
}

func (c *Core) deferClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases owned resources in reverse order.
func (c *Core) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
