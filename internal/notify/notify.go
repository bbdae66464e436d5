/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notify delivers reservation lifecycle events to an ordered list
// of sinks. Delivery is fire-and-continue: a failing sink is logged and
// counted, never surfaced to the caller.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/models"
)

// Kind names a lifecycle event.
type Kind string

const (
	KindCreated       Kind = "CREATED"
	KindConfirmed     Kind = "CONFIRMED"
	KindCancelled     Kind = "CANCELLED"
	KindReminder      Kind = "REMINDER"
	KindExpiryWarning Kind = "EXPIRY_WARNING"
	KindPaymentDue    Kind = "PAYMENT_DUE"
)

// EventType maps a kind onto the in-process bus namespace.
func (k Kind) EventType() events.EventType {
	switch k {
	case KindCreated:
		return events.EventReservationCreated
	case KindConfirmed:
		return events.EventReservationConfirmed
	case KindCancelled:
		return events.EventReservationCancelled
	case KindReminder:
		return events.EventReservationReminder
	case KindExpiryWarning:
		return events.EventReservationExpiryWarning
	case KindPaymentDue:
		return events.EventReservationPaymentDue
	}
	return events.EventType("reservation." + string(k))
}

// Event is the payload handed to every sink.
type Event struct {
	Kind          Kind       `json:"kind"`
	ReservationID string     `json:"reservation_id"`
	Reference     string     `json:"reference"`
	OwnerID       string     `json:"owner_id"`
	SlotID        string     `json:"slot_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Reason        string     `json:"reason,omitempty"`
	Message       string     `json:"message"`
	PaymentDueBy  *time.Time `json:"payment_due_by,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// NewEvent builds an event for r. reason is optional free text.
func NewEvent(r *models.Reservation, kind Kind, reason string, at time.Time) Event {
	ev := Event{
		Kind:          kind,
		ReservationID: r.ID,
		Reference:     r.Reference(),
		OwnerID:       r.OwnerID,
		SlotID:        r.SlotID,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Reason:        reason,
		OccurredAt:    at.UTC(),
	}
	ev.Message = message(r, kind, reason, time.Time{})
	return ev
}

// NewPaymentDueEvent builds a PAYMENT_DUE event naming the deadline after
// which the unpaid booking is cancelled.
func NewPaymentDueEvent(r *models.Reservation, deadline, at time.Time) Event {
	ev := NewEvent(r, KindPaymentDue, "", at)
	due := deadline.UTC()
	ev.PaymentDueBy = &due
	ev.Message = message(r, KindPaymentDue, "", due)
	return ev
}

// Payload flattens the event for bus and pub/sub transports.
func (e Event) Payload() events.Payload {
	p := events.Payload{
		"kind":           string(e.Kind),
		"reservation_id": e.ReservationID,
		"reference":      e.Reference,
		"owner_id":       e.OwnerID,
		"slot_id":        e.SlotID,
		"start_time":     e.StartTime,
		"end_time":       e.EndTime,
		"message":        e.Message,
		"occurred_at":    e.OccurredAt,
	}
	if e.Reason != "" {
		p["reason"] = e.Reason
	}
	if e.PaymentDueBy != nil {
		p["payment_due_by"] = *e.PaymentDueBy
	}
	return p
}

const timeLayout = "2006-01-02 15:04 MST"

func message(r *models.Reservation, kind Kind, reason string, dueBy time.Time) string {
	ref := r.Reference()
	switch kind {
	case KindCreated:
		return fmt.Sprintf("Booking %s created for %s to %s. It is held until payment is received.",
			ref, r.StartTime.Format(timeLayout), r.EndTime.Format(timeLayout))
	case KindConfirmed:
		return fmt.Sprintf("Payment received. Booking %s is confirmed for %s to %s.",
			ref, r.StartTime.Format(timeLayout), r.EndTime.Format(timeLayout))
	case KindCancelled:
		if reason != "" {
			return fmt.Sprintf("Booking %s was cancelled: %s.", ref, reason)
		}
		return fmt.Sprintf("Booking %s was cancelled.", ref)
	case KindReminder:
		return fmt.Sprintf("Booking %s starts at %s.", ref, r.StartTime.Format(timeLayout))
	case KindExpiryWarning:
		return fmt.Sprintf("Booking %s ends at %s.", ref, r.EndTime.Format(timeLayout))
	case KindPaymentDue:
		if dueBy.IsZero() {
			return fmt.Sprintf("Payment for booking %s is due soon or it will be cancelled.", ref)
		}
		return fmt.Sprintf("Payment for booking %s is due by %s or it will be cancelled.",
			ref, dueBy.Format(timeLayout))
	}
	return fmt.Sprintf("Booking %s: %s", ref, kind)
}

// Gateway receives lifecycle events from the engine and the sweep.
type Gateway interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Event) {}
