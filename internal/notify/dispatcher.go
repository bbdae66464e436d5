/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/parkbay/internal/telemetry"
)

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Dispatcher fans events out to sinks in registration order.
type Dispatcher struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher over sinks.
func NewDispatcher(logger zerolog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Add appends a sink.
func (d *Dispatcher) Add(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Sinks returns the registered sink names in order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Notify delivers ev to every sink. A sink that errors or panics does not
// stop the remaining sinks.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	for _, s := range d.sinks {
		err := d.deliver(ctx, s, ev)
		result := "ok"
		if err != nil {
			result = "error"
			d.logger.Warn().Err(err).
				Str("sink", s.Name()).
				Str("kind", string(ev.Kind)).
				Str("reservation_id", ev.ReservationID).
				Msg("notification delivery failed")
		}
		telemetry.NotificationsTotal.WithLabelValues(s.Name(), string(ev.Kind), result).Inc()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.Deliver(ctx, ev)
}
