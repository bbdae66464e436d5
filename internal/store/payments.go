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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/friendsincode/parkbay/internal/models"
)

// PaymentStore persists payments. There is exactly one per reservation.
type PaymentStore struct {
	db *gorm.DB
}

// Create inserts a payment, assigning an id when missing.
func (s *PaymentStore) Create(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// Get loads a payment by id.
func (s *PaymentStore) Get(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetByReservation loads the payment attached to a reservation.
func (s *PaymentStore) GetByReservation(ctx context.Context, reservationID string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, "reservation_id = ?", reservationID).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Transition moves a payment between statuses with a compare-and-swap on
// the source status.
func (s *PaymentStore) Transition(ctx context.Context, id string, from, to models.PaymentStatus, now time.Time, extra map[string]any) error {
	updates := map[string]any{"status": to, "updated_at": now}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("transition payment %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// UpdateAmount rewrites the amount of a payment.
func (s *PaymentStore) UpdateAmount(ctx context.Context, id string, amount decimal.Decimal, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{"amount": amount, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("update payment amount: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TotalCollected sums COMPLETED payments paid in [from, to). A zero bound
// leaves that side open.
func (s *PaymentStore) TotalCollected(ctx context.Context, from, to time.Time) (decimal.Decimal, int, error) {
	q := s.db.WithContext(ctx).Model(&models.Payment{}).Where("status = ?", models.PaymentCompleted)
	if !from.IsZero() {
		q = q.Where("paid_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("paid_at < ?", to.UTC())
	}

	var amounts []decimal.Decimal
	if err := q.Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, 0, fmt.Errorf("sum payments: %w", err)
	}
	return decimal.Sum(decimal.Zero, amounts...), len(amounts), nil
}

// SumCompletedByOwner totals an owner's COMPLETED payments.
func (s *PaymentStore) SumCompletedByOwner(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Joins("JOIN reservations ON reservations.id = payments.reservation_id").
		Where("reservations.owner_id = ? AND payments.status = ?", ownerID, models.PaymentCompleted).
		Pluck("payments.amount", &amounts).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum owner payments: %w", err)
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}
