/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/notify"
	"github.com/friendsincode/parkbay/internal/store"
	"github.com/friendsincode/parkbay/internal/telemetry"
)

// OverdueReason is the reason text on CANCELLED events for unpaid bookings.
const OverdueReason = "payment overdue"

// Activate moves a CONFIRMED reservation whose start has passed to ACTIVE and
// occupies its slot. It returns ErrTransitionConflict when the reservation
// is no longer CONFIRMED.
func (e *Engine) Activate(ctx context.Context, r *models.Reservation) error {
	now := e.clock.Now()
	err := e.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Reservations.Transition(ctx, r.ID, models.ReservationConfirmed, models.ReservationActive, now, nil); err != nil {
			return stale(err)
		}
		if r.SlotHeld {
			return nil
		}
		slot, err := tx.Slots.Get(ctx, r.SlotID)
		if err != nil {
			return err
		}
		held, err := occupy(ctx, tx, slot, r.ID, now)
		if err != nil {
			return err
		}
		r.SlotHeld = held
		return nil
	})
	if err != nil {
		return err
	}
	r.Status = models.ReservationActive
	r.UpdatedAt = now
	telemetry.TransitionsTotal.WithLabelValues(string(models.ReservationConfirmed), string(models.ReservationActive), "sweep").Inc()
	e.logger.Debug().Str("reservation_id", r.ID).Msg("reservation activated")
	return nil
}

// Complete moves an ACTIVE reservation whose end has passed to COMPLETED and
// releases its slot.
func (e *Engine) Complete(ctx context.Context, r *models.Reservation) error {
	now := e.clock.Now()
	err := e.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Reservations.Transition(ctx, r.ID, models.ReservationActive, models.ReservationCompleted, now, nil); err != nil {
			return stale(err)
		}
		return e.release(ctx, tx, r, now)
	})
	if err != nil {
		return err
	}
	r.Status = models.ReservationCompleted
	r.SlotHeld = false
	r.UpdatedAt = now
	telemetry.TransitionsTotal.WithLabelValues(string(models.ReservationActive), string(models.ReservationCompleted), "sweep").Inc()
	e.logger.Debug().Str("reservation_id", r.ID).Msg("reservation completed")
	return nil
}

// CancelOverdue cancels a PENDING reservation whose payment never arrived.
// The payment is left as it is.
func (e *Engine) CancelOverdue(ctx context.Context, r *models.Reservation) error {
	now := e.clock.Now()
	err := e.store.Reservations.Transition(ctx, r.ID, models.ReservationPending, models.ReservationCancelled, now, map[string]any{
		"cancel_reason": models.CancelReasonPaymentOverdue,
		"cancelled_by":  "system",
	})
	if err != nil {
		return stale(err)
	}
	r.Status = models.ReservationCancelled
	r.CancelReason = models.CancelReasonPaymentOverdue
	r.CancelledBy = "system"
	r.UpdatedAt = now
	telemetry.TransitionsTotal.WithLabelValues(string(models.ReservationPending), string(models.ReservationCancelled), "overdue").Inc()
	e.logger.Info().Str("reservation_id", r.ID).Msg("unpaid booking cancelled")
	e.gateway.Notify(ctx, notify.NewEvent(r, notify.KindCancelled, OverdueReason, now))
	return nil
}

// Remind sends a once-only reminder of kind for r. It reports false when the
// reminder was already sent or r is no longer in the status it was read in.
func (e *Engine) Remind(ctx context.Context, r *models.Reservation, kind notify.Kind) (bool, error) {
	var column store.ReminderColumn
	switch kind {
	case notify.KindReminder:
		column = store.ReminderStart
	case notify.KindExpiryWarning:
		column = store.ReminderExpiry
	case notify.KindPaymentDue:
		column = store.ReminderPaymentDue
	default:
		return false, errors.New("not a reminder kind: " + string(kind))
	}

	now := e.clock.Now()
	marked, err := e.store.Reservations.MarkReminded(ctx, r.ID, r.Status, column, now)
	if err != nil || !marked {
		return false, err
	}
	ev := notify.NewEvent(r, kind, "", now)
	if kind == notify.KindPaymentDue {
		ev = notify.NewPaymentDueEvent(r, r.CreatedAt.Add(e.policy.PaymentGrace), now)
	}
	e.gateway.Notify(ctx, ev)
	return true, nil
}

// Windows used by the reminder steps.
const (
	ReminderLead      = 30 * time.Minute
	ExpiryWarningLead = 15 * time.Minute
	PaymentDueLead    = 6 * time.Hour
)
