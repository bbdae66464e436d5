/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is the gorm-backed persistence for slots, reservations,
// payments and in-app notifications.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStaleStatus is returned by compare-and-swap updates when the row is
	// no longer in the expected state.
	ErrStaleStatus = errors.New("status changed concurrently")
)

// Store bundles the per-table stores over one database handle.
type Store struct {
	db *gorm.DB

	Slots         *SlotStore
	Reservations  *ReservationStore
	Payments      *PaymentStore
	Notifications *NotificationStore
}

// New wraps a gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		Slots:         &SlotStore{db: db},
		Reservations:  &ReservationStore{db: db},
		Payments:      &PaymentStore{db: db},
		Notifications: &NotificationStore{db: db},
	}
}

// DB exposes the underlying handle (migrations, health checks).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn with a Store bound to a single database transaction.
// Returning an error from fn rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
