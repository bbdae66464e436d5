/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// SlotStatus is the advisory availability of a parking slot.
type SlotStatus string

const (
	SlotAvailable   SlotStatus = "AVAILABLE"
	SlotOccupied    SlotStatus = "OCCUPIED"
	SlotMaintenance SlotStatus = "MAINTENANCE"
)

// Valid reports whether s is a known slot status.
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotOccupied, SlotMaintenance:
		return true
	}
	return false
}

// SlotClass tags a slot for display and pricing rules outside the engine.
type SlotClass string

const (
	SlotClassGeneral SlotClass = "GENERAL"
	SlotClassVIP     SlotClass = "VIP"
	SlotClassStaff   SlotClass = "STAFF"
)

// Valid reports whether c is a known slot class.
func (c SlotClass) Valid() bool {
	switch c {
	case SlotClassGeneral, SlotClassVIP, SlotClassStaff:
		return true
	}
	return false
}

// Slot is a physical parking space.
type Slot struct {
	ID        string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Code      string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Location  string     `gorm:"type:varchar(128);index" json:"location"`
	Class     SlotClass  `gorm:"type:varchar(16);not null;default:'GENERAL'" json:"class"`
	Status    SlotStatus `gorm:"type:varchar(16);not null;default:'AVAILABLE';index" json:"status"`
	CreatedAt time.Time  `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Slot) TableName() string {
	return "slots"
}
