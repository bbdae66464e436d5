/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// PaymentMethod names how the payment was settled.
type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "ONLINE"
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodCash   PaymentMethod = "CASH"
)

// Payment gates a reservation's confirmation. Exactly one exists per reservation.
type Payment struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReservationID string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"reservation_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Method        PaymentMethod   `gorm:"type:varchar(16);not null" json:"method"`
	Status        PaymentStatus   `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Payment) TableName() string {
	return "payments"
}
