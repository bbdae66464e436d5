/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sweep advances reservations from elapsed wall-clock time:
// activation, completion, overdue cancellation and reminders.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/friendsincode/parkbay/internal/booking"
	"github.com/friendsincode/parkbay/internal/clock"
	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/notify"
	"github.com/friendsincode/parkbay/internal/store"
	"github.com/friendsincode/parkbay/internal/telemetry"
)

const (
	defaultInterval  = 5 * time.Minute
	defaultBatchSize = 500
)

// Report counts what one sweep run did.
type Report struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Activated      int           `json:"activated"`
	Completed      int           `json:"completed"`
	Cancelled      int           `json:"cancelled"`
	Reminders      int           `json:"reminders"`
	ExpiryWarnings int           `json:"expiry_warnings"`
	PaymentDue     int           `json:"payment_due"`
	Skipped        int           `json:"skipped"` // lost a compare-and-swap to a concurrent change
	Failures       int           `json:"failures"`
}

// Config tunes the sweeper.
type Config struct {
	Interval  time.Duration
	BatchSize int // rows per step per run
}

// Sweeper runs the lifecycle sweep.
type Sweeper struct {
	engine *booking.Engine
	store  *store.Store
	clock  clock.Clock
	bus    *events.Bus
	cfg    Config
	logger zerolog.Logger

	group singleflight.Group
}

// New creates a sweeper.
func New(engine *booking.Engine, st *store.Store, clk clock.Clock, cfg Config, logger zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Sweeper{
		engine: engine,
		store:  st,
		clock:  clk,
		cfg:    cfg,
		logger: logger.With().Str("component", "sweep").Logger(),
	}
}

// SetBus publishes a sweep.completed event after each run.
func (s *Sweeper) SetBus(bus *events.Bus) {
	s.bus = bus
}

// Run sweeps on every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("sweep loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunSweep(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("sweep run had errors")
			}
		}
	}
}

// RunSweep performs one sweep. Calls that overlap an in-flight run wait for
// it and share its report instead of starting another.
func (s *Sweeper) RunSweep(ctx context.Context) (Report, error) {
	v, err, shared := s.group.Do("sweep", func() (any, error) {
		return s.sweep(ctx)
	})
	if shared {
		s.logger.Debug().Msg("joined in-flight sweep")
	}
	rep, _ := v.(Report)
	return rep, err
}

func (s *Sweeper) sweep(ctx context.Context) (Report, error) {
	ctx, span := telemetry.StartSpan(ctx, "parkbay/sweep", "sweep.Run")
	defer span.End()

	now := s.clock.Now()
	rep := Report{StartedAt: now}
	started := time.Now()

	var errs []error
	steps := []struct {
		name string
		run  func(context.Context, time.Time, *Report) error
	}{
		{"activate", s.activate},
		{"complete", s.complete},
		{"overdue", s.cancelOverdue},
		{"remind", s.remind},
		{"payment_due", s.paymentDue},
	}
	for _, step := range steps {
		if err := step.run(ctx, now, &rep); err != nil {
			telemetry.SweepErrorsTotal.WithLabelValues(step.name).Inc()
			s.logger.Error().Err(err).Str("step", step.name).Msg("sweep step failed")
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	rep.Duration = time.Since(started)
	telemetry.SweepDuration.Observe(rep.Duration.Seconds())

	err := errors.Join(errs...)
	result := "ok"
	if err != nil || rep.Failures > 0 {
		result = "partial"
		telemetry.RecordError(span, err)
	}
	telemetry.SweepRunsTotal.WithLabelValues(result).Inc()
	telemetry.AddSpanAttributes(span, map[string]any{
		"sweep.activated": rep.Activated,
		"sweep.completed": rep.Completed,
		"sweep.cancelled": rep.Cancelled,
		"sweep.failures":  rep.Failures,
	})

	s.logger.Info().
		Int("activated", rep.Activated).
		Int("completed", rep.Completed).
		Int("cancelled", rep.Cancelled).
		Int("reminders", rep.Reminders).
		Int("expiry_warnings", rep.ExpiryWarnings).
		Int("payment_due", rep.PaymentDue).
		Int("skipped", rep.Skipped).
		Int("failures", rep.Failures).
		Dur("duration", rep.Duration).
		Msg("sweep finished")

	if s.bus != nil {
		s.bus.Publish(events.EventSweepCompleted, events.Payload{
			"started_at": rep.StartedAt,
			"activated":  rep.Activated,
			"completed":  rep.Completed,
			"cancelled":  rep.Cancelled,
			"failures":   rep.Failures,
		})
	}
	return rep, err
}

// each applies fn to every row, isolating failures per reservation.
func (s *Sweeper) each(step string, rows []models.Reservation, rep *Report, fn func(*models.Reservation) (bool, error)) int {
	done := 0
	for i := range rows {
		r := &rows[i]
		ok, err := fn(r)
		switch {
		case errors.Is(err, booking.ErrTransitionConflict):
			rep.Skipped++
		case err != nil:
			rep.Failures++
			telemetry.SweepErrorsTotal.WithLabelValues(step).Inc()
			s.logger.Warn().Err(err).Str("step", step).Str("reservation_id", r.ID).Msg("sweep row failed")
		case ok:
			done++
		}
	}
	return done
}

func (s *Sweeper) activate(ctx context.Context, now time.Time, rep *Report) error {
	rows, err := s.store.Reservations.DueForActivation(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	rep.Activated += s.each("activate", rows, rep, func(r *models.Reservation) (bool, error) {
		return true, s.engine.Activate(ctx, r)
	})
	return nil
}

func (s *Sweeper) complete(ctx context.Context, now time.Time, rep *Report) error {
	rows, err := s.store.Reservations.DueForCompletion(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	rep.Completed += s.each("complete", rows, rep, func(r *models.Reservation) (bool, error) {
		return true, s.engine.Complete(ctx, r)
	})
	return nil
}

func (s *Sweeper) cancelOverdue(ctx context.Context, now time.Time, rep *Report) error {
	cutoff := now.Add(-s.engine.Policy().PaymentGrace)
	rows, err := s.store.Reservations.PendingCreatedBefore(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	rep.Cancelled += s.each("overdue", rows, rep, func(r *models.Reservation) (bool, error) {
		return true, s.engine.CancelOverdue(ctx, r)
	})
	return nil
}

func (s *Sweeper) remind(ctx context.Context, now time.Time, rep *Report) error {
	starting, err := s.store.Reservations.StartingWithin(ctx, now, booking.ReminderLead, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	rep.Reminders += s.each("remind", starting, rep, func(r *models.Reservation) (bool, error) {
		return s.engine.Remind(ctx, r, notify.KindReminder)
	})

	ending, err := s.store.Reservations.EndingWithin(ctx, now, booking.ExpiryWarningLead, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	rep.ExpiryWarnings += s.each("remind", ending, rep, func(r *models.Reservation) (bool, error) {
		return s.engine.Remind(ctx, r, notify.KindExpiryWarning)
	})
	return nil
}

func (s *Sweeper) paymentDue(ctx context.Context, now time.Time, rep *Report) error {
	rows, err := s.store.Reservations.PaymentDueWithin(ctx, now, s.engine.Policy().PaymentGrace, booking.PaymentDueLead, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	rep.PaymentDue += s.each("payment_due", rows, rep, func(r *models.Reservation) (bool, error) {
		return s.engine.Remind(ctx, r, notify.KindPaymentDue)
	})
	return nil
}
