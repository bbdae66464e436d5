/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/store"
)

// CreateSlot registers a new slot. Code must be unique.
func (e *Engine) CreateSlot(ctx context.Context, code, location string, class models.SlotClass) (*models.Slot, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: slot code is required", ErrInvalidRequest)
	}
	if class != "" && !class.Valid() {
		return nil, fmt.Errorf("%w: unknown slot class %q", ErrInvalidRequest, class)
	}
	if _, err := e.store.Slots.GetByCode(ctx, code); err == nil {
		return nil, fmt.Errorf("%w: slot %s already exists", ErrInvalidRequest, code)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	slot := &models.Slot{
		Code:      code,
		Location:  strings.TrimSpace(location),
		Class:     class,
		Status:    models.SlotAvailable,
		CreatedAt: e.clock.Now(),
	}
	if err := e.store.Slots.Create(ctx, slot); err != nil {
		return nil, err
	}
	e.logger.Info().Str("slot_id", slot.ID).Str("code", slot.Code).Msg("slot created")
	return slot, nil
}

// ListSlots returns slots matching the filter.
func (e *Engine) ListSlots(ctx context.Context, filter store.SlotFilter) ([]models.Slot, error) {
	return e.store.Slots.List(ctx, filter)
}

// SetSlotMaintenance puts a slot into or out of maintenance. OCCUPIED is
// owned by the lifecycle and cannot be set directly; only a slot under
// maintenance is returned to AVAILABLE.
func (e *Engine) SetSlotMaintenance(ctx context.Context, slotID string, maintenance bool) (*models.Slot, error) {
	now := e.clock.Now()
	if _, err := e.store.Slots.Get(ctx, slotID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	if maintenance {
		if err := e.store.Slots.SetStatus(ctx, slotID, models.SlotMaintenance, now); err != nil {
			return nil, err
		}
	} else {
		swapped, err := e.store.Slots.CompareAndSetStatus(ctx, slotID, models.SlotMaintenance, models.SlotAvailable, now)
		if err != nil {
			return nil, err
		}
		if !swapped {
			return e.store.Slots.Get(ctx, slotID)
		}
	}

	slot, err := e.store.Slots.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("slot_id", slotID).Str("status", string(slot.Status)).Msg("slot status changed")
	return slot, nil
}
