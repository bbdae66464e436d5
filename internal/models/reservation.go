/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"strings"
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// BlockingStatuses are the states that hold a slot against other bookings.
// PENDING does not block until payment has been proven.
var BlockingStatuses = []ReservationStatus{ReservationConfirmed, ReservationActive}

// Blocks reports whether a reservation in this state occupies its window.
func (s ReservationStatus) Blocks() bool {
	return s == ReservationConfirmed || s == ReservationActive
}

// Cancellable reports whether the state machine allows cancellation from s.
func (s ReservationStatus) Cancellable() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

// Terminal reports whether no further transitions leave s.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationCompleted || s == ReservationCancelled
}

// CancelReason distinguishes user cancellation from system cancellation.
type CancelReason string

const (
	CancelReasonUser           CancelReason = "user_cancelled"
	CancelReasonPaymentOverdue CancelReason = "payment_overdue"
)

// Reservation is a claim on a slot for a bounded time window.
type Reservation struct {
	ID           string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID      string            `gorm:"type:varchar(64);index:idx_reservations_owner;not null" json:"owner_id"`
	SlotID       string            `gorm:"type:varchar(36);index:idx_reservations_slot_window;not null" json:"slot_id"`
	StartTime    time.Time         `gorm:"index:idx_reservations_slot_window;not null" json:"start_time"`
	EndTime      time.Time         `gorm:"index:idx_reservations_slot_window;not null" json:"end_time"`
	Status       ReservationStatus `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_reservations_status" json:"status"`
	VehicleID    *string           `gorm:"type:varchar(32)" json:"vehicle_id,omitempty"`
	CancelReason CancelReason      `gorm:"type:varchar(32)" json:"cancel_reason,omitempty"`
	CancelledBy  string            `gorm:"type:varchar(64)" json:"cancelled_by,omitempty"`

	// SlotHeld is set when the engine flipped the slot to OCCUPIED for this
	// reservation, so only the holder releases it.
	SlotHeld bool `gorm:"not null;default:false" json:"slot_held"`

	ReminderSentAt      *time.Time `json:"reminder_sent_at,omitempty"`
	ExpiryWarningSentAt *time.Time `json:"expiry_warning_sent_at,omitempty"`
	PaymentDueSentAt    *time.Time `json:"payment_due_sent_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime:false;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`

	Slot    *Slot    `gorm:"foreignKey:SlotID" json:"slot,omitempty"`
	Payment *Payment `gorm:"foreignKey:ReservationID" json:"payment,omitempty"`
}

// TableName returns the table name for GORM.
func (Reservation) TableName() string {
	return "reservations"
}

// Duration returns the length of the reserved window.
func (r *Reservation) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Overlaps reports whether [start, end) intersects the reservation window.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return start.Before(r.EndTime) && end.After(r.StartTime)
}

// Reference is the human booking reference, e.g. BK-20261015-1a2b3c4d.
func (r *Reservation) Reference() string {
	if r.ID == "" || r.CreatedAt.IsZero() {
		return ""
	}
	short := strings.ReplaceAll(r.ID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("BK-%s-%s", r.CreatedAt.UTC().Format("20060102"), short)
}
