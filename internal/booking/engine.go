/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package booking implements the reservation lifecycle: creating bookings
// against the conflict resolver, confirming payment, cancelling,
// rescheduling and the time-driven transitions the sweep applies.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/friendsincode/parkbay/internal/clock"
	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/notify"
	"github.com/friendsincode/parkbay/internal/store"
	"github.com/friendsincode/parkbay/internal/telemetry"
)

const tracerName = "parkbay/booking"

// Policy holds the booking rules.
type Policy struct {
	HourlyRate         decimal.Decimal
	Currency           string
	MinLeadTime        time.Duration // start must be at least this far ahead
	MinDuration        time.Duration
	CancellationWindow time.Duration // measured from creation
	OccupyLead         time.Duration // confirmations this close to start occupy the slot
	PaymentGrace       time.Duration // PENDING reservations older than this are cancelled
}

// DefaultPolicy returns the standard rules at the given hourly rate.
func DefaultPolicy(rate decimal.Decimal, currency string) Policy {
	return Policy{
		HourlyRate:         rate,
		Currency:           currency,
		MinLeadTime:        5 * time.Minute,
		MinDuration:        30 * time.Minute,
		CancellationWindow: 60 * time.Minute,
		OccupyLead:         10 * time.Minute,
		PaymentGrace:       24 * time.Hour,
	}
}

// CreateBookingRequest is the input to CreateBooking.
type CreateBookingRequest struct {
	OwnerID   string
	SlotID    string
	Start     time.Time
	End       time.Time
	VehicleID string
}

// Engine applies lifecycle operations to reservations and their payments.
type Engine struct {
	store   *store.Store
	clock   clock.Clock
	gateway notify.Gateway
	policy  Policy
	logger  zerolog.Logger
}

// New creates an engine.
func New(st *store.Store, clk clock.Clock, gw notify.Gateway, policy Policy, logger zerolog.Logger) *Engine {
	if gw == nil {
		gw = notify.Nop{}
	}
	return &Engine{
		store:   st,
		clock:   clk,
		gateway: gw,
		policy:  policy,
		logger:  logger.With().Str("component", "booking").Logger(),
	}
}

// Policy returns the engine's booking rules.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Now returns the engine clock's time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

func (e *Engine) validateWindow(start, end, now time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	if start.Before(now.Add(e.policy.MinLeadTime)) {
		return fmt.Errorf("%w: start must be at least %s from now", ErrInvalidWindow, e.policy.MinLeadTime)
	}
	if end.Sub(start) < e.policy.MinDuration {
		return fmt.Errorf("%w: duration must be at least %s", ErrInvalidWindow, e.policy.MinDuration)
	}
	return nil
}

// CreateBooking inserts a PENDING reservation and its PENDING payment in one
// transaction, after checking the slot is free for the window. No
// notification is sent until the payment is confirmed.
func (e *Engine) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "booking.CreateBooking")
	defer span.End()

	now := e.clock.Now()
	start, end := req.Start.UTC(), req.End.UTC()

	if strings.TrimSpace(req.OwnerID) == "" || strings.TrimSpace(req.SlotID) == "" {
		telemetry.BookingsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: owner and slot are required", ErrInvalidRequest)
	}
	if err := e.validateWindow(start, end, now); err != nil {
		telemetry.BookingsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	res := &models.Reservation{
		OwnerID:   req.OwnerID,
		SlotID:    req.SlotID,
		StartTime: start,
		EndTime:   end,
		Status:    models.ReservationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if v := strings.TrimSpace(req.VehicleID); v != "" {
		res.VehicleID = &v
	}
	payment := &models.Payment{
		Amount:    Price(e.policy.HourlyRate, end.Sub(start)),
		Currency:  e.policy.Currency,
		Method:    models.PaymentMethodOnline,
		Status:    models.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := e.store.Transaction(ctx, func(tx *store.Store) error {
		slot, err := tx.Slots.Lock(ctx, req.SlotID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrSlotNotFound
		}
		if err != nil {
			return err
		}
		if slot.Status == models.SlotMaintenance {
			return fmt.Errorf("%w: slot %s is under maintenance", ErrSlotUnavailable, slot.Code)
		}

		conflicts, err := NewResolver(tx.Reservations).Conflicts(ctx, slot.ID, start, end, "")
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return ErrSlotUnavailable
		}

		if err := tx.Reservations.Create(ctx, res); err != nil {
			return err
		}
		payment.ReservationID = res.ID
		if err := tx.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("%w: %v", ErrBookingFailed, err)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.BookingsTotal.WithLabelValues(bookingOutcome(err)).Inc()
		if !isDomainError(err) {
			err = fmt.Errorf("%w: %v", ErrBookingFailed, err)
		}
		e.logger.Debug().Err(err).Str("slot_id", req.SlotID).Str("owner_id", req.OwnerID).Msg("booking rejected")
		return nil, err
	}

	res.Payment = payment
	telemetry.BookingsTotal.WithLabelValues("created").Inc()
	telemetry.AddSpanAttributes(span, map[string]any{
		"reservation.id": res.ID,
		"slot.id":        res.SlotID,
	})
	e.logger.Info().
		Str("reservation_id", res.ID).
		Str("reference", res.Reference()).
		Str("slot_id", res.SlotID).
		Str("owner_id", res.OwnerID).
		Time("start", start).
		Time("end", end).
		Str("amount", payment.Amount.StringFixed(2)).
		Msg("booking created")
	return res, nil
}

// ConfirmPayment completes a payment and confirms its reservation. Repeat
// confirmations of a COMPLETED payment succeed without effect. The slot is
// re-checked so two PENDING bookings of one window cannot both confirm.
func (e *Engine) ConfirmPayment(ctx context.Context, paymentID string, method models.PaymentMethod) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "booking.ConfirmPayment")
	defer span.End()

	if method == "" {
		method = models.PaymentMethodOnline
	}

	var confirmed *models.Reservation
	err := e.withRetry("confirm", func() error {
		confirmed = nil
		r, err := e.confirmOnce(ctx, paymentID, method)
		confirmed = r
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if confirmed == nil {
		return nil
	}

	e.logger.Info().
		Str("payment_id", paymentID).
		Str("reservation_id", confirmed.ID).
		Str("method", string(method)).
		Bool("slot_held", confirmed.SlotHeld).
		Msg("payment confirmed")
	e.gateway.Notify(ctx, notify.NewEvent(confirmed, notify.KindConfirmed, "", e.clock.Now()))
	return nil
}

// confirmOnce returns the confirmed reservation, or nil when the payment
// was already complete.
func (e *Engine) confirmOnce(ctx context.Context, paymentID string, method models.PaymentMethod) (*models.Reservation, error) {
	now := e.clock.Now()
	var confirmed *models.Reservation

	err := e.store.Transaction(ctx, func(tx *store.Store) error {
		p, err := tx.Payments.Get(ctx, paymentID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		switch p.Status {
		case models.PaymentCompleted:
			return nil
		case models.PaymentCancelled, models.PaymentRefunded:
			return ErrPaymentAlreadyCancelled
		}

		r, err := tx.Reservations.Get(ctx, p.ReservationID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		if r.Status != models.ReservationPending {
			return fmt.Errorf("%w: reservation is %s", ErrPaymentAlreadyCancelled, r.Status)
		}

		slot, err := tx.Slots.Lock(ctx, r.SlotID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrSlotNotFound
		}
		if err != nil {
			return err
		}
		conflicts, err := NewResolver(tx.Reservations).Conflicts(ctx, r.SlotID, r.StartTime, r.EndTime, r.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return ErrSlotUnavailable
		}

		err = tx.Payments.Transition(ctx, p.ID, models.PaymentPending, models.PaymentCompleted, now, map[string]any{
			"method":  method,
			"paid_at": now,
		})
		if err != nil {
			return stale(err)
		}
		if err := tx.Reservations.Transition(ctx, r.ID, models.ReservationPending, models.ReservationConfirmed, now, nil); err != nil {
			return stale(err)
		}
		r.Status = models.ReservationConfirmed
		r.UpdatedAt = now

		if !r.StartTime.After(now.Add(e.policy.OccupyLead)) {
			held, err := occupy(ctx, tx, slot, r.ID, now)
			if err != nil {
				return err
			}
			r.SlotHeld = held
		}
		confirmed = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if confirmed != nil {
		telemetry.TransitionsTotal.WithLabelValues(string(models.ReservationPending), string(models.ReservationConfirmed), "payment").Inc()
	}
	return confirmed, nil
}

// CancelBooking cancels a PENDING or CONFIRMED reservation within the
// cancellation window. A completed payment is refunded in full and a slot
// held for the reservation is released.
func (e *Engine) CancelBooking(ctx context.Context, reservationID, actorID string) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "booking.CancelBooking")
	defer span.End()

	var cancelled *models.Reservation
	var refunded bool
	err := e.withRetry("cancel", func() error {
		r, ref, err := e.cancelOnce(ctx, reservationID, actorID)
		cancelled, refunded = r, ref
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	e.logger.Info().
		Str("reservation_id", cancelled.ID).
		Str("actor_id", actorID).
		Bool("refunded", refunded).
		Msg("booking cancelled")
	e.gateway.Notify(ctx, notify.NewEvent(cancelled, notify.KindCancelled, "cancelled by user", e.clock.Now()))
	return nil
}

func (e *Engine) cancelOnce(ctx context.Context, reservationID, actorID string) (*models.Reservation, bool, error) {
	now := e.clock.Now()
	r, err := e.store.Reservations.Get(ctx, reservationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, ErrReservationNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if !r.Status.Cancellable() {
		return nil, false, fmt.Errorf("%w: reservation is %s", ErrNotCancellable, r.Status)
	}
	if elapsed := now.Sub(r.CreatedAt); elapsed > e.policy.CancellationWindow {
		return nil, false, &CancellationWindowError{Elapsed: elapsed, Window: e.policy.CancellationWindow}
	}

	from := r.Status
	refunded := false
	err = e.store.Transaction(ctx, func(tx *store.Store) error {
		err := tx.Reservations.Transition(ctx, r.ID, from, models.ReservationCancelled, now, map[string]any{
			"cancel_reason": models.CancelReasonUser,
			"cancelled_by":  actorID,
		})
		if err != nil {
			return stale(err)
		}

		p, err := tx.Payments.GetByReservation(ctx, r.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if p != nil && p.Status == models.PaymentCompleted {
			err := tx.Payments.Transition(ctx, p.ID, models.PaymentCompleted, models.PaymentRefunded, now, map[string]any{
				"refunded_at": now,
			})
			if err != nil {
				return stale(err)
			}
			refunded = true
		}

		return e.release(ctx, tx, r, now)
	})
	if err != nil {
		return nil, false, err
	}

	telemetry.TransitionsTotal.WithLabelValues(string(from), string(models.ReservationCancelled), "user").Inc()
	r.Status = models.ReservationCancelled
	r.CancelReason = models.CancelReasonUser
	r.CancelledBy = actorID
	r.SlotHeld = false
	r.UpdatedAt = now
	return r, refunded, nil
}

// RescheduleBooking moves a CONFIRMED reservation to a new window on the
// same slot and reprices its payment.
func (e *Engine) RescheduleBooking(ctx context.Context, reservationID string, newStart, newEnd time.Time) (*models.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "booking.RescheduleBooking")
	defer span.End()

	start, end := newStart.UTC(), newEnd.UTC()
	var out *models.Reservation
	err := e.withRetry("reschedule", func() error {
		r, err := e.rescheduleOnce(ctx, reservationID, start, end)
		out = r
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	e.logger.Info().
		Str("reservation_id", out.ID).
		Time("start", start).
		Time("end", end).
		Str("amount", out.Payment.Amount.StringFixed(2)).
		Msg("booking rescheduled")
	return out, nil
}

func (e *Engine) rescheduleOnce(ctx context.Context, reservationID string, start, end time.Time) (*models.Reservation, error) {
	now := e.clock.Now()
	if err := e.validateWindow(start, end, now); err != nil {
		return nil, err
	}

	var out *models.Reservation
	err := e.store.Transaction(ctx, func(tx *store.Store) error {
		r, err := tx.Reservations.Get(ctx, reservationID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		if r.Status != models.ReservationConfirmed {
			return fmt.Errorf("%w: reservation is %s", ErrNotReschedulable, r.Status)
		}

		slot, err := tx.Slots.Lock(ctx, r.SlotID)
		if err != nil {
			return err
		}
		conflicts, err := NewResolver(tx.Reservations).Conflicts(ctx, r.SlotID, start, end, r.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return ErrSlotUnavailable
		}

		if err := tx.Reservations.UpdateWindow(ctx, r.ID, models.ReservationConfirmed, start, end, now); err != nil {
			return stale(err)
		}
		r.StartTime, r.EndTime, r.UpdatedAt, r.ReminderSentAt = start, end, now, nil

		if r.Payment != nil {
			amount := Price(e.policy.HourlyRate, end.Sub(start))
			if err := tx.Payments.UpdateAmount(ctx, r.Payment.ID, amount, now); err != nil {
				return err
			}
			r.Payment.Amount = amount
			r.Payment.UpdatedAt = now
		}

		soon := !start.After(now.Add(e.policy.OccupyLead))
		switch {
		case soon && !r.SlotHeld:
			held, err := occupy(ctx, tx, slot, r.ID, now)
			if err != nil {
				return err
			}
			r.SlotHeld = held
		case !soon && r.SlotHeld:
			if err := e.release(ctx, tx, r, now); err != nil {
				return err
			}
			r.SlotHeld = false
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetReservation loads a reservation with its payment.
func (e *Engine) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := e.store.Reservations.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	return r, err
}

// GetPayment loads a payment.
func (e *Engine) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	p, err := e.store.Payments.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// ListReservationsForOwner pages an owner's reservations, newest first.
func (e *Engine) ListReservationsForOwner(ctx context.Context, ownerID string, opts store.ListOptions) ([]models.Reservation, int64, error) {
	return e.store.Reservations.ListByOwner(ctx, ownerID, opts)
}

// IsSlotAvailable reports whether the slot can be booked for [start, end).
// Slots under maintenance are never available.
func (e *Engine) IsSlotAvailable(ctx context.Context, slotID string, start, end time.Time) (bool, error) {
	if !end.After(start) {
		return false, fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	slot, err := e.store.Slots.Get(ctx, slotID)
	if errors.Is(err, store.ErrNotFound) {
		return false, ErrSlotNotFound
	}
	if err != nil {
		return false, err
	}
	if slot.Status == models.SlotMaintenance {
		return false, nil
	}
	return NewResolver(e.store.Reservations).IsAvailable(ctx, slotID, start.UTC(), end.UTC())
}

// withRetry runs fn again once when it reports a transition conflict.
func (e *Engine) withRetry(trigger string, fn func() error) error {
	err := fn()
	if errors.Is(err, ErrTransitionConflict) {
		telemetry.TransitionConflictsTotal.WithLabelValues(trigger).Inc()
		e.logger.Debug().Str("trigger", trigger).Msg("transition conflict, retrying")
		err = fn()
	}
	return err
}

// occupy flips an AVAILABLE slot to OCCUPIED for reservationID. It reports
// whether this reservation now holds the slot.
func occupy(ctx context.Context, tx *store.Store, slot *models.Slot, reservationID string, now time.Time) (bool, error) {
	if slot.Status == models.SlotMaintenance {
		return false, nil
	}
	swapped, err := tx.Slots.CompareAndSetStatus(ctx, slot.ID, models.SlotAvailable, models.SlotOccupied, now)
	if err != nil {
		return false, err
	}
	if !swapped {
		return false, nil
	}
	if err := tx.Reservations.SetSlotHeld(ctx, reservationID, true, now); err != nil {
		return false, err
	}
	return true, nil
}

// release gives up r's hold on its slot. When no other reservation holds the
// slot it passes to the next CONFIRMED/ACTIVE reservation due within
// OccupyLead, and only otherwise becomes AVAILABLE.
func (e *Engine) release(ctx context.Context, tx *store.Store, r *models.Reservation, now time.Time) error {
	if !r.SlotHeld {
		return nil
	}
	if err := tx.Reservations.SetSlotHeld(ctx, r.ID, false, now); err != nil {
		return err
	}
	other, err := tx.Reservations.HasOtherHolder(ctx, r.SlotID, r.ID)
	if err != nil || other {
		return err
	}

	next, err := tx.Reservations.NextHolder(ctx, r.SlotID, r.ID, now.Add(e.policy.OccupyLead), now)
	if err != nil {
		return err
	}
	if next != nil {
		slot, err := tx.Slots.Get(ctx, r.SlotID)
		if err != nil {
			return err
		}
		if slot.Status == models.SlotOccupied {
			if err := tx.Reservations.SetSlotHeld(ctx, next.ID, true, now); err != nil {
				return err
			}
			e.logger.Debug().
				Str("slot_id", r.SlotID).
				Str("from_reservation", r.ID).
				Str("to_reservation", next.ID).
				Msg("slot handed over")
			return nil
		}
	}

	_, err = tx.Slots.CompareAndSetStatus(ctx, r.SlotID, models.SlotOccupied, models.SlotAvailable, now)
	return err
}

func stale(err error) error {
	if errors.Is(err, store.ErrStaleStatus) {
		return ErrTransitionConflict
	}
	return err
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return "unavailable"
	case errors.Is(err, ErrSlotNotFound):
		return "slot_not_found"
	default:
		return "failed"
	}
}

func isDomainError(err error) bool {
	for _, target := range []error{ErrSlotUnavailable, ErrSlotNotFound, ErrBookingFailed, ErrInvalidWindow} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
