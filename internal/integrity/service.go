/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package integrity scans booking data for states the lifecycle engine
// should never leave behind and repairs the ones that are safe to fix.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/parkbay/internal/clock"
	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/store"
)

type FindingType string

const (
	// An OCCUPIED slot with no live reservation holding it.
	FindingOrphanOccupiedSlot FindingType = "orphan_occupied_slot"
	// A finished reservation still flagged as holding its slot.
	FindingTerminalHoldsSlot FindingType = "terminal_holds_slot"
	// A confirmed, active or completed reservation whose payment is not settled.
	FindingUnpaidConfirmed FindingType = "unpaid_confirmed"
	// A reservation with no payment row.
	FindingMissingPayment FindingType = "missing_payment"
	// Two blocking reservations overlapping on one slot.
	FindingOverlappingBookings FindingType = "overlapping_bookings"
	// An ACTIVE reservation whose slot nobody holds.
	FindingActiveSlotUnheld FindingType = "active_slot_unheld"
)

// ErrNotRepairable is returned for finding types that need a human.
var ErrNotRepairable = errors.New("finding type is not repairable")

type Finding struct {
	ID         string         `json:"id"`
	Type       FindingType    `json:"type"`
	Severity   string         `json:"severity"`
	Summary    string         `json:"summary"`
	SlotID     string         `json:"slot_id,omitempty"`
	ResourceID string         `json:"resource_id"`
	Repairable bool           `json:"repairable"`
	Details    map[string]any `json:"details,omitempty"`
}

type Report struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Total       int                 `json:"total"`
	ByType      map[FindingType]int `json:"by_type"`
	Findings    []Finding           `json:"findings"`
}

type RepairInput struct {
	Type       FindingType `json:"type"`
	ResourceID string      `json:"resource_id"`
}

type RepairResult struct {
	Changed bool   `json:"changed"`
	Message string `json:"message"`
}

type Service struct {
	db     *gorm.DB
	store  *store.Store
	clock  clock.Clock
	logger zerolog.Logger
}

func NewService(st *store.Store, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		db:     st.DB(),
		store:  st,
		clock:  clk,
		logger: logger.With().Str("component", "integrity").Logger(),
	}
}

// Scan runs every check and returns the combined findings.
func (s *Service) Scan(ctx context.Context) (*Report, error) {
	checks := []func(context.Context) ([]Finding, error){
		s.scanOrphanOccupiedSlots,
		s.scanTerminalHolds,
		s.scanUnpaidConfirmed,
		s.scanMissingPayments,
		s.scanOverlappingBookings,
		s.scanActiveUnheld,
	}

	findings := make([]Finding, 0, 16)
	for _, check := range checks {
		added, err := check(ctx)
		if err != nil {
			return nil, err
		}
		findings = append(findings, added...)
	}

	byType := make(map[FindingType]int)
	for _, f := range findings {
		byType[f.Type]++
	}

	report := &Report{
		GeneratedAt: s.clock.Now(),
		Total:       len(findings),
		ByType:      byType,
		Findings:    findings,
	}

	if report.Total > 0 {
		s.logger.Warn().Int("total_findings", report.Total).Interface("by_type", byType).Msg("integrity scan completed with findings")
	} else {
		s.logger.Info().Msg("integrity scan completed with no findings")
	}
	return report, nil
}

// Repair fixes a single finding. Repairs re-check the condition first, so
// running one twice reports Changed=false the second time.
func (s *Service) Repair(ctx context.Context, input RepairInput) (RepairResult, error) {
	if input.ResourceID == "" {
		return RepairResult{}, errors.New("resource_id is required")
	}
	switch input.Type {
	case FindingOrphanOccupiedSlot:
		return s.repairOrphanOccupiedSlot(ctx, input.ResourceID)
	case FindingTerminalHoldsSlot:
		return s.repairTerminalHold(ctx, input.ResourceID)
	case FindingActiveSlotUnheld:
		return s.repairActiveUnheld(ctx, input.ResourceID)
	case FindingUnpaidConfirmed, FindingMissingPayment, FindingOverlappingBookings:
		return RepairResult{}, fmt.Errorf("%w: %s", ErrNotRepairable, input.Type)
	default:
		return RepairResult{}, fmt.Errorf("unsupported finding type: %s", input.Type)
	}
}

func (s *Service) scanOrphanOccupiedSlots(ctx context.Context) ([]Finding, error) {
	var slots []models.Slot
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.SlotOccupied).
		Where("NOT EXISTS (SELECT 1 FROM reservations r WHERE r.slot_id = slots.id AND r.slot_held = ? AND r.status IN ?)",
			true, models.BlockingStatuses).
		Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("scan occupied slots: %w", err)
	}

	findings := make([]Finding, 0, len(slots))
	for _, slot := range slots {
		findings = append(findings, Finding{
			ID:         findingID(FindingOrphanOccupiedSlot, slot.ID),
			Type:       FindingOrphanOccupiedSlot,
			Severity:   "high",
			Summary:    "Slot is OCCUPIED but no live booking holds it",
			SlotID:     slot.ID,
			ResourceID: slot.ID,
			Repairable: true,
			Details:    map[string]any{"code": slot.Code},
		})
	}
	return findings, nil
}

func (s *Service) scanTerminalHolds(ctx context.Context) ([]Finding, error) {
	var rows []models.Reservation
	if err := s.db.WithContext(ctx).
		Where("slot_held = ? AND status IN ?", true,
			[]models.ReservationStatus{models.ReservationCompleted, models.ReservationCancelled}).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan terminal holds: %w", err)
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingTerminalHoldsSlot, r.ID),
			Type:       FindingTerminalHoldsSlot,
			Severity:   "medium",
			Summary:    "Finished booking still holds its slot",
			SlotID:     r.SlotID,
			ResourceID: r.ID,
			Repairable: true,
			Details:    map[string]any{"status": r.Status},
		})
	}
	return findings, nil
}

func (s *Service) scanUnpaidConfirmed(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID            string
		SlotID        string
		Status        models.ReservationStatus
		PaymentStatus models.PaymentStatus
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("reservations").
		Select("reservations.id, reservations.slot_id, reservations.status, payments.status AS payment_status").
		Joins("JOIN payments ON payments.reservation_id = reservations.id").
		Where("reservations.status IN ?", []models.ReservationStatus{
			models.ReservationConfirmed, models.ReservationActive, models.ReservationCompleted,
		}).
		Where("payments.status <> ?", models.PaymentCompleted).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan unpaid bookings: %w", err)
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingUnpaidConfirmed, r.ID),
			Type:       FindingUnpaidConfirmed,
			Severity:   "critical",
			Summary:    "Booking passed confirmation without a completed payment",
			SlotID:     r.SlotID,
			ResourceID: r.ID,
			Details: map[string]any{
				"status":         r.Status,
				"payment_status": r.PaymentStatus,
			},
		})
	}
	return findings, nil
}

func (s *Service) scanMissingPayments(ctx context.Context) ([]Finding, error) {
	var rows []models.Reservation
	if err := s.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM payments p WHERE p.reservation_id = reservations.id)").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan missing payments: %w", err)
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingMissingPayment, r.ID),
			Type:       FindingMissingPayment,
			Severity:   "high",
			Summary:    "Booking has no payment record",
			SlotID:     r.SlotID,
			ResourceID: r.ID,
			Details:    map[string]any{"status": r.Status},
		})
	}
	return findings, nil
}

func (s *Service) scanOverlappingBookings(ctx context.Context) ([]Finding, error) {
	type row struct {
		FirstID  string
		SecondID string
		SlotID   string
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("reservations AS a").
		Select("a.id AS first_id, b.id AS second_id, a.slot_id AS slot_id").
		Joins("JOIN reservations AS b ON b.slot_id = a.slot_id AND a.id < b.id").
		Where("a.status IN ? AND b.status IN ?", models.BlockingStatuses, models.BlockingStatuses).
		Where("a.start_time < b.end_time AND b.start_time < a.end_time").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan overlapping bookings: %w", err)
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingOverlappingBookings, r.FirstID+"+"+r.SecondID),
			Type:       FindingOverlappingBookings,
			Severity:   "critical",
			Summary:    "Two blocking bookings overlap on the same slot",
			SlotID:     r.SlotID,
			ResourceID: r.FirstID,
			Details:    map[string]any{"other_booking_id": r.SecondID},
		})
	}
	return findings, nil
}

func (s *Service) scanActiveUnheld(ctx context.Context) ([]Finding, error) {
	var rows []models.Reservation
	if err := s.db.WithContext(ctx).
		Where("status = ? AND slot_held = ?", models.ReservationActive, false).
		Where("NOT EXISTS (SELECT 1 FROM reservations h WHERE h.slot_id = reservations.slot_id AND h.slot_held = ? AND h.status IN ?)",
			true, models.BlockingStatuses).
		Where("NOT EXISTS (SELECT 1 FROM slots s WHERE s.id = reservations.slot_id AND s.status = ?)", models.SlotMaintenance).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan unheld active bookings: %w", err)
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:         findingID(FindingActiveSlotUnheld, r.ID),
			Type:       FindingActiveSlotUnheld,
			Severity:   "high",
			Summary:    "Active booking's slot is not marked occupied for it",
			SlotID:     r.SlotID,
			ResourceID: r.ID,
			Repairable: true,
			Details:    map[string]any{"end_time": r.EndTime},
		})
	}
	return findings, nil
}

func (s *Service) repairOrphanOccupiedSlot(ctx context.Context, slotID string) (RepairResult, error) {
	now := s.clock.Now()
	held, err := s.store.Reservations.HasOtherHolder(ctx, slotID, "")
	if err != nil {
		return RepairResult{}, err
	}
	if held {
		return RepairResult{Message: "slot has a live holder"}, nil
	}
	swapped, err := s.store.Slots.CompareAndSetStatus(ctx, slotID, models.SlotOccupied, models.SlotAvailable, now)
	if err != nil {
		return RepairResult{}, err
	}
	if !swapped {
		return RepairResult{Message: "slot is not occupied"}, nil
	}
	s.logger.Info().Str("slot_id", slotID).Msg("released orphaned slot")
	return RepairResult{Changed: true, Message: "slot released"}, nil
}

func (s *Service) repairTerminalHold(ctx context.Context, reservationID string) (RepairResult, error) {
	now := s.clock.Now()
	var result RepairResult
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		r, err := tx.Reservations.Get(ctx, reservationID)
		if err != nil {
			return err
		}
		if !r.SlotHeld || !r.Status.Terminal() {
			result.Message = "booking does not hold its slot"
			return nil
		}
		if err := tx.Reservations.SetSlotHeld(ctx, r.ID, false, now); err != nil {
			return err
		}
		result.Changed = true
		result.Message = "hold cleared"

		other, err := tx.Reservations.HasOtherHolder(ctx, r.SlotID, r.ID)
		if err != nil {
			return err
		}
		if other {
			return nil
		}
		released, err := tx.Slots.CompareAndSetStatus(ctx, r.SlotID, models.SlotOccupied, models.SlotAvailable, now)
		if err != nil {
			return err
		}
		if released {
			result.Message = "hold cleared and slot released"
		}
		return nil
	})
	if err != nil {
		return RepairResult{}, err
	}
	if result.Changed {
		s.logger.Info().Str("reservation_id", reservationID).Msg(result.Message)
	}
	return result, nil
}

func (s *Service) repairActiveUnheld(ctx context.Context, reservationID string) (RepairResult, error) {
	now := s.clock.Now()
	var result RepairResult
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		r, err := tx.Reservations.Get(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != models.ReservationActive || r.SlotHeld {
			result.Message = "booking is not an unheld active booking"
			return nil
		}
		slot, err := tx.Slots.Lock(ctx, r.SlotID)
		if err != nil {
			return err
		}
		other, err := tx.Reservations.HasOtherHolder(ctx, r.SlotID, r.ID)
		if err != nil {
			return err
		}
		if other {
			result.Message = "slot has a live holder"
			return nil
		}
		switch slot.Status {
		case models.SlotMaintenance:
			result.Message = "slot is under maintenance"
			return nil
		case models.SlotAvailable:
			if _, err := tx.Slots.CompareAndSetStatus(ctx, slot.ID, models.SlotAvailable, models.SlotOccupied, now); err != nil {
				return err
			}
		}
		if err := tx.Reservations.SetSlotHeld(ctx, r.ID, true, now); err != nil {
			return err
		}
		result.Changed = true
		result.Message = "slot occupied for booking"
		return nil
	})
	if err != nil {
		return RepairResult{}, err
	}
	if result.Changed {
		s.logger.Info().Str("reservation_id", reservationID).Msg(result.Message)
	}
	return result, nil
}

func findingID(t FindingType, resourceID string) string {
	return fmt.Sprintf("%s|%s", t, resourceID)
}
