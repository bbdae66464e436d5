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
	"gorm.io/gorm/clause"

	"github.com/friendsincode/parkbay/internal/models"
)

// SlotStore persists parking slots.
type SlotStore struct {
	db *gorm.DB
}

// SlotFilter narrows List results. Zero values match everything.
type SlotFilter struct {
	Status   models.SlotStatus
	Location string
	Class    models.SlotClass
}

// Create inserts a slot, assigning an id and defaults when missing.
func (s *SlotStore) Create(ctx context.Context, slot *models.Slot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.Status == "" {
		slot.Status = models.SlotAvailable
	}
	if slot.Class == "" {
		slot.Class = models.SlotClassGeneral
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}
	slot.UpdatedAt = slot.CreatedAt
	if err := s.db.WithContext(ctx).Create(slot).Error; err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// Get loads a slot by id.
func (s *SlotStore) Get(ctx context.Context, id string) (*models.Slot, error) {
	var slot models.Slot
	if err := s.db.WithContext(ctx).First(&slot, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &slot, nil
}

// GetByCode loads a slot by its human code.
func (s *SlotStore) GetByCode(ctx context.Context, code string) (*models.Slot, error) {
	var slot models.Slot
	if err := s.db.WithContext(ctx).First(&slot, "code = ?", code).Error; err != nil {
		return nil, notFound(err)
	}
	return &slot, nil
}

// Lock loads a slot with a row lock held until the surrounding transaction
// ends. Bookings for the same slot serialise on this lock. SQLite ignores
// the locking clause; its single connection already serialises writers.
func (s *SlotStore) Lock(ctx context.Context, id string) (*models.Slot, error) {
	var slot models.Slot
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&slot, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &slot, nil
}

// List returns slots ordered by code.
func (s *SlotStore) List(ctx context.Context, filter SlotFilter) ([]models.Slot, error) {
	q := s.db.WithContext(ctx).Model(&models.Slot{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Location != "" {
		q = q.Where("location = ?", filter.Location)
	}
	if filter.Class != "" {
		q = q.Where("class = ?", filter.Class)
	}

	var slots []models.Slot
	if err := q.Order("code ASC").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// SetStatus unconditionally sets a slot's status.
func (s *SlotStore) SetStatus(ctx context.Context, id string, status models.SlotStatus, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Slot{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("set slot status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompareAndSetStatus moves a slot from one status to another. It reports
// false without error when the slot was not in the expected status.
func (s *SlotStore) CompareAndSetStatus(ctx context.Context, id string, from, to models.SlotStatus, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Slot{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("swap slot status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
