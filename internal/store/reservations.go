/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/parkbay/internal/models"
)

// ReservationStore persists reservations. Status changes go through
// Transition so every write is conditional on the expected source status.
type ReservationStore struct {
	db *gorm.DB
}

// ListOptions pages owner listings.
type ListOptions struct {
	Status models.ReservationStatus
	Limit  int
	Offset int
}

// ReminderColumn names a once-only notification marker on a reservation.
type ReminderColumn string

const (
	ReminderStart      ReminderColumn = "reminder_sent_at"
	ReminderExpiry     ReminderColumn = "expiry_warning_sent_at"
	ReminderPaymentDue ReminderColumn = "payment_due_sent_at"
)

// Create inserts a reservation, assigning an id when missing.
func (s *ReservationStore) Create(ctx context.Context, r *models.Reservation) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.ReservationPending
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	if err := s.db.WithContext(ctx).Omit("Slot", "Payment").Create(r).Error; err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

// Get loads a reservation with its payment.
func (s *ReservationStore) Get(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	if err := s.db.WithContext(ctx).Preload("Payment").First(&r, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ListByOwner returns an owner's reservations, newest first, with the total count.
func (s *ReservationStore) ListByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]models.Reservation, int64, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	q := s.db.WithContext(ctx).Model(&models.Reservation{}).Where("owner_id = ?", ownerID)
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}

	var out []models.Reservation
	err := q.Preload("Payment").
		Order("created_at DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list reservations: %w", err)
	}
	return out, total, nil
}

// CountByOwner returns total and currently blocking (CONFIRMED/ACTIVE) counts.
func (s *ReservationStore) CountByOwner(ctx context.Context, ownerID string) (total, active int64, err error) {
	db := s.db.WithContext(ctx).Model(&models.Reservation{})
	if err = db.Where("owner_id = ?", ownerID).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count reservations: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("owner_id = ? AND status IN ?", ownerID, models.BlockingStatuses).
		Count(&active).Error
	if err != nil {
		return 0, 0, fmt.Errorf("count active reservations: %w", err)
	}
	return total, active, nil
}

// ListBlocking returns the CONFIRMED/ACTIVE reservations of a slot that end
// after notBefore. Callers test overlap themselves.
func (s *ReservationStore) ListBlocking(ctx context.Context, slotID string, notBefore time.Time) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.db.WithContext(ctx).
		Where("slot_id = ? AND status IN ? AND end_time > ?", slotID, models.BlockingStatuses, notBefore.UTC()).
		Order("start_time ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list blocking reservations: %w", err)
	}
	return out, nil
}

// Transition moves a reservation from one status to another, optionally
// writing extra columns. It returns ErrStaleStatus when the row is not in
// the expected status at write time.
func (s *ReservationStore) Transition(ctx context.Context, id string, from, to models.ReservationStatus, now time.Time, extra map[string]any) error {
	updates := map[string]any{"status": to, "updated_at": now}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("transition reservation %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// UpdateWindow rewrites the time window of a reservation that is still in
// the expected status.
func (s *ReservationStore) UpdateWindow(ctx context.Context, id string, expect models.ReservationStatus, start, end, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, expect).
		Updates(map[string]any{
			"start_time":       start.UTC(),
			"end_time":         end.UTC(),
			"reminder_sent_at": nil,
			"updated_at":       now,
		})
	if res.Error != nil {
		return fmt.Errorf("update reservation window: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// SetSlotHeld records whether this reservation owns the slot's OCCUPIED flag.
func (s *ReservationStore) SetSlotHeld(ctx context.Context, id string, held bool, now time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ?", id).
		Updates(map[string]any{"slot_held": held, "updated_at": now}).Error
	if err != nil {
		return fmt.Errorf("set slot held: %w", err)
	}
	return nil
}

// DueForActivation lists CONFIRMED reservations whose start has passed.
func (s *ReservationStore) DueForActivation(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	return s.find(ctx, limit, "status = ? AND start_time <= ?", models.ReservationConfirmed, now.UTC())
}

// DueForCompletion lists ACTIVE reservations whose end has passed.
func (s *ReservationStore) DueForCompletion(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	return s.find(ctx, limit, "status = ? AND end_time <= ?", models.ReservationActive, now.UTC())
}

// PendingCreatedBefore lists PENDING reservations created at or before cutoff.
func (s *ReservationStore) PendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	return s.find(ctx, limit, "status = ? AND created_at <= ?", models.ReservationPending, cutoff.UTC())
}

// StartingWithin lists CONFIRMED reservations starting in (now, now+window]
// that have not had a start reminder yet.
func (s *ReservationStore) StartingWithin(ctx context.Context, now time.Time, window time.Duration, limit int) ([]models.Reservation, error) {
	return s.find(ctx, limit,
		"status = ? AND start_time > ? AND start_time <= ? AND reminder_sent_at IS NULL",
		models.ReservationConfirmed, now.UTC(), now.Add(window).UTC())
}

// EndingWithin lists ACTIVE reservations ending in (now, now+window] that
// have not had an expiry warning yet.
func (s *ReservationStore) EndingWithin(ctx context.Context, now time.Time, window time.Duration, limit int) ([]models.Reservation, error) {
	return s.find(ctx, limit,
		"status = ? AND end_time > ? AND end_time <= ? AND expiry_warning_sent_at IS NULL",
		models.ReservationActive, now.UTC(), now.Add(window).UTC())
}

// PaymentDueWithin lists PENDING reservations whose payment deadline
// (created_at + grace) falls in (now, now+window] and that were not warned yet.
func (s *ReservationStore) PaymentDueWithin(ctx context.Context, now time.Time, grace, window time.Duration, limit int) ([]models.Reservation, error) {
	return s.find(ctx, limit,
		"status = ? AND created_at > ? AND created_at <= ? AND payment_due_sent_at IS NULL",
		models.ReservationPending, now.Add(-grace).UTC(), now.Add(window-grace).UTC())
}

// MarkReminded stamps a once-only reminder column on a reservation still in
// the expected status. It reports false when another run already stamped it
// or the status has moved on.
func (s *ReservationStore) MarkReminded(ctx context.Context, id string, expect models.ReservationStatus, column ReminderColumn, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where(fmt.Sprintf("id = ? AND status = ? AND %s IS NULL", column), id, expect).
		Update(string(column), now)
	if res.Error != nil {
		return false, fmt.Errorf("mark %s: %w", column, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// HasOtherHolder reports whether another CONFIRMED/ACTIVE reservation
// currently holds the slot's OCCUPIED flag.
func (s *ReservationStore) HasOtherHolder(ctx context.Context, slotID, excludeID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("slot_id = ? AND id <> ? AND slot_held = ? AND status IN ?",
			slotID, excludeID, true, models.BlockingStatuses).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count slot holders: %w", err)
	}
	return n > 0, nil
}

// NextHolder returns the earliest CONFIRMED/ACTIVE reservation of a slot,
// other than excludeID, that does not hold the slot, has not ended at now and
// starts by startBy. It returns nil when there is none.
func (s *ReservationStore) NextHolder(ctx context.Context, slotID, excludeID string, startBy, now time.Time) (*models.Reservation, error) {
	var out []models.Reservation
	err := s.db.WithContext(ctx).
		Where("slot_id = ? AND id <> ? AND slot_held = ? AND status IN ? AND start_time <= ? AND end_time > ?",
			slotID, excludeID, false, models.BlockingStatuses, startBy.UTC(), now.UTC()).
		Order("start_time ASC").
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("find next slot holder: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (s *ReservationStore) find(ctx context.Context, limit int, query string, args ...any) ([]models.Reservation, error) {
	q := s.db.WithContext(ctx).Where(query, args...).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Reservation
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	return out, nil
}
