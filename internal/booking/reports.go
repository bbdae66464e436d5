/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/friendsincode/parkbay/internal/models"
)

// CancellationStatus describes whether a reservation can still be cancelled.
type CancellationStatus struct {
	Allowed          bool   `json:"allowed"`
	ElapsedMinutes   int    `json:"elapsed_minutes"`
	RemainingMinutes int    `json:"remaining_minutes"`
	Message          string `json:"message"`
}

// CancellationStatus reports the cancellation window state for a reservation.
func (e *Engine) CancellationStatus(ctx context.Context, reservationID string) (*CancellationStatus, error) {
	r, err := e.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	return e.cancellationStatus(r, e.clock.Now()), nil
}

func (e *Engine) cancellationStatus(r *models.Reservation, now time.Time) *CancellationStatus {
	elapsed := now.Sub(r.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	window := e.policy.CancellationWindow
	mins := int(elapsed / time.Minute)
	st := &CancellationStatus{ElapsedMinutes: mins}

	if !r.Status.Cancellable() {
		st.Message = fmt.Sprintf("Booking is %s and can no longer be cancelled.", r.Status)
		return st
	}
	if elapsed > window {
		st.Message = fmt.Sprintf("Booking was made %d hours %d minutes ago. Cancellation is only allowed within %d minutes of booking.",
			mins/60, mins%60, int(window/time.Minute))
		return st
	}

	st.Allowed = true
	st.RemainingMinutes = int((window - elapsed) / time.Minute)
	st.Message = fmt.Sprintf("You can cancel this booking. %d minutes left.", st.RemainingMinutes)
	return st
}

// OwnerSummary totals an owner's bookings and spending.
type OwnerSummary struct {
	OwnerID            string          `json:"owner_id"`
	TotalReservations  int64           `json:"total_reservations"`
	ActiveReservations int64           `json:"active_reservations"`
	TotalSpent         decimal.Decimal `json:"total_spent"`
	Currency           string          `json:"currency"`
}

// OwnerSummary returns reservation counts and the sum of completed payments.
func (e *Engine) OwnerSummary(ctx context.Context, ownerID string) (*OwnerSummary, error) {
	total, active, err := e.store.Reservations.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	spent, err := e.store.Payments.SumCompletedByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &OwnerSummary{
		OwnerID:            ownerID,
		TotalReservations:  total,
		ActiveReservations: active,
		TotalSpent:         spent,
		Currency:           e.policy.Currency,
	}, nil
}

// Revenue is the income collected over a period.
type Revenue struct {
	From     *time.Time      `json:"from,omitempty"`
	To       *time.Time      `json:"to,omitempty"`
	Total    decimal.Decimal `json:"total"`
	Payments int             `json:"payments"`
	Currency string          `json:"currency"`
}

// Revenue sums completed payments paid in [from, to). Zero bounds are open.
func (e *Engine) Revenue(ctx context.Context, from, to time.Time) (*Revenue, error) {
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return nil, fmt.Errorf("%w: to must be after from", ErrInvalidRequest)
	}
	total, n, err := e.store.Payments.TotalCollected(ctx, from, to)
	if err != nil {
		return nil, err
	}
	rev := &Revenue{Total: total, Payments: n, Currency: e.policy.Currency}
	if !from.IsZero() {
		f := from.UTC()
		rev.From = &f
	}
	if !to.IsZero() {
		t := to.UTC()
		rev.To = &t
	}
	return rev, nil
}
