/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidWindow is returned when a booking window breaks the lead
	// time or minimum duration rules.
	ErrInvalidWindow = errors.New("invalid booking window")

	// ErrInvalidRequest is returned for malformed input outside the window rules.
	ErrInvalidRequest = errors.New("invalid booking request")

	// ErrSlotUnavailable is returned when the slot is already taken for the
	// window or is under maintenance.
	ErrSlotUnavailable = errors.New("slot unavailable for the requested window")

	ErrSlotNotFound        = errors.New("slot not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrPaymentNotFound     = errors.New("payment not found")

	// ErrPaymentAlreadyCancelled is returned when confirming a payment that
	// was cancelled or refunded, or whose reservation is no longer pending.
	ErrPaymentAlreadyCancelled = errors.New("payment already cancelled")

	// ErrCancellationWindowExpired is matched by *CancellationWindowError.
	ErrCancellationWindowExpired = errors.New("cancellation window expired")

	// ErrNotCancellable is returned when the reservation is past CONFIRMED.
	ErrNotCancellable = errors.New("reservation can no longer be cancelled")

	// ErrNotReschedulable is returned when the reservation is not CONFIRMED.
	ErrNotReschedulable = errors.New("only confirmed reservations can be rescheduled")

	// ErrTransitionConflict is returned when a reservation changed state
	// underneath a transition, after one retry.
	ErrTransitionConflict = errors.New("reservation changed concurrently")

	// ErrBookingFailed is returned when the booking could not be written;
	// nothing was persisted.
	ErrBookingFailed = errors.New("booking failed")
)

// CancellationWindowError reports how far past the window a cancellation was.
type CancellationWindowError struct {
	Elapsed time.Duration
	Window  time.Duration
}

func (e *CancellationWindowError) Error() string {
	mins := int(e.Elapsed / time.Minute)
	return fmt.Sprintf("%s: booking was made %d hours %d minutes ago, cancellation is only allowed within %d minutes",
		ErrCancellationWindowExpired, mins/60, mins%60, int(e.Window/time.Minute))
}

// Is matches ErrCancellationWindowExpired.
func (e *CancellationWindowError) Is(target error) bool {
	return target == ErrCancellationWindowExpired
}
