/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"context"
	"time"

	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/store"
)

// Resolver detects overlapping reservations on a slot. Only CONFIRMED and
// ACTIVE reservations block; windows are half-open [start, end).
type Resolver struct {
	reservations *store.ReservationStore
}

// NewResolver creates a resolver reading through rs. Pass a transaction's
// store to evaluate inside that transaction.
func NewResolver(rs *store.ReservationStore) *Resolver {
	return &Resolver{reservations: rs}
}

// IsAvailable reports whether [start, end) is free on the slot.
func (r *Resolver) IsAvailable(ctx context.Context, slotID string, start, end time.Time) (bool, error) {
	c, err := r.Conflicts(ctx, slotID, start, end, "")
	if err != nil {
		return false, err
	}
	return len(c) == 0, nil
}

// Conflicts returns the blocking reservations overlapping [start, end),
// ignoring excludeID.
func (r *Resolver) Conflicts(ctx context.Context, slotID string, start, end time.Time, excludeID string) ([]models.Reservation, error) {
	candidates, err := r.reservations.ListBlocking(ctx, slotID, start)
	if err != nil {
		return nil, err
	}
	var out []models.Reservation
	for i := range candidates {
		c := &candidates[i]
		if c.ID == excludeID {
			continue
		}
		if c.Overlaps(start, end) {
			out = append(out, *c)
		}
	}
	return out, nil
}
