/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventReservationCreated       EventType = "reservation.created"
	EventReservationConfirmed     EventType = "reservation.confirmed"
	EventReservationCancelled     EventType = "reservation.cancelled"
	EventReservationReminder      EventType = "reservation.reminder"
	EventReservationExpiryWarning EventType = "reservation.expiry_warning"
	EventReservationPaymentDue    EventType = "reservation.payment_due"

	EventSweepCompleted EventType = "sweep.completed"

	EventAuditSlotCreate      EventType = "audit.slot.create"
	EventAuditSlotStatus      EventType = "audit.slot.status"
	EventAuditSweepRun        EventType = "audit.sweep.run"
	EventAuditIntegrityRepair EventType = "audit.integrity.repair"
)

// OwnerEventTypes are the reservation events delivered to the owning driver.
var OwnerEventTypes = []EventType{
	EventReservationConfirmed,
	EventReservationCancelled,
	EventReservationReminder,
	EventReservationExpiryWarning,
	EventReservationPaymentDue,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub. Slow subscribers miss events
// rather than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	// Sends never block, so holding the read lock keeps Unsubscribe from
	// closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes it.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
