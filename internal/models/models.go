/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package models holds the persisted records of the booking engine.
package models

// All returns every model managed by migrations, in dependency order.
func All() []any {
	return []any{
		&Slot{},
		&Reservation{},
		&Payment{},
		&Notification{},
		&AuditLog{},
	}
}
