/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Notification is an in-app copy of a lifecycle event delivered to an owner.
type Notification struct {
	ID            string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID       string    `gorm:"type:varchar(64);index:idx_notifications_owner;not null" json:"owner_id"`
	ReservationID string    `gorm:"type:varchar(36);index;not null" json:"reservation_id"`
	Kind          string    `gorm:"type:varchar(32);not null" json:"kind"`
	Reference     string    `gorm:"type:varchar(32)" json:"reference,omitempty"`
	Message       string    `gorm:"type:text;not null" json:"message"`
	Read          bool      `gorm:"column:is_read;not null;default:false" json:"read"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false;index" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Notification) TableName() string {
	return "notifications"
}
