/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit actions for operator changes outside the booking lifecycle.
const (
	AuditActionSlotCreate      AuditAction = "slot.create"
	AuditActionSlotStatus      AuditAction = "slot.status"
	AuditActionSweepRun        AuditAction = "sweep.run"
	AuditActionIntegrityRepair AuditAction = "integrity.repair"
)

// AuditLog records an operator action.
type AuditLog struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	UserID       string         `gorm:"type:varchar(64);index:idx_audit_user" json:"user_id,omitempty"`
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	ResourceType string         `gorm:"type:varchar(64)" json:"resource_type,omitempty"`
	ResourceID   string         `gorm:"type:varchar(36)" json:"resource_id,omitempty"`
	Details      map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	IPAddress    string         `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	UserAgent    string         `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime:false" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
