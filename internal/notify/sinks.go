/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/models"
)

// LogSink writes events to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("sink", "log").Logger()}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, ev Event) error {
	s.logger.Info().
		Str("kind", string(ev.Kind)).
		Str("reservation_id", ev.ReservationID).
		Str("reference", ev.Reference).
		Str("owner_id", ev.OwnerID).
		Str("reason", ev.Reason).
		Msg(ev.Message)
	return nil
}

// BusSink republishes events on the in-process bus.
type BusSink struct {
	bus *events.Bus
}

// NewBusSink creates a bus sink.
func NewBusSink(bus *events.Bus) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) Name() string { return "bus" }

func (s *BusSink) Deliver(_ context.Context, ev Event) error {
	s.bus.Publish(ev.Kind.EventType(), ev.Payload())
	return nil
}

// NotificationWriter persists in-app notifications.
type NotificationWriter interface {
	Create(ctx context.Context, n *models.Notification) error
}

// StoreSink keeps an in-app copy of every event for the owner.
type StoreSink struct {
	w NotificationWriter
}

// NewStoreSink creates a store sink.
func NewStoreSink(w NotificationWriter) *StoreSink {
	return &StoreSink{w: w}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(ctx context.Context, ev Event) error {
	return s.w.Create(ctx, &models.Notification{
		OwnerID:       ev.OwnerID,
		ReservationID: ev.ReservationID,
		Kind:          string(ev.Kind),
		Reference:     ev.Reference,
		Message:       ev.Message,
		CreatedAt:     ev.OccurredAt,
	})
}
