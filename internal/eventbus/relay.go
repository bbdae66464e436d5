/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus relays selected in-process bus events between instances,
// so a websocket client sees events no matter which instance produced them.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/telemetry"
)

// OriginKey marks a payload that arrived from another instance. Such
// payloads are never relayed again.
const OriginKey = "origin_node"

// Transport carries encoded relay messages between instances.
type Transport interface {
	Name() string
	Publish(ctx context.Context, data []byte) error
	// Subscribe returns a channel closed once ctx is done.
	Subscribe(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// message is the wire format shared by all transports.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

// Relay publishes local events to the transport and republishes remote
// events on the local bus.
type Relay struct {
	bus       *events.Bus
	transport Transport
	nodeID    string
	types     []events.EventType
	logger    zerolog.Logger
	done      chan struct{}
}

// NewRelay creates a relay for the given event types. An empty nodeID gets
// a random one.
func NewRelay(bus *events.Bus, transport Transport, nodeID string, types []events.EventType, logger zerolog.Logger) *Relay {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	return &Relay{
		bus:       bus,
		transport: transport,
		nodeID:    nodeID,
		types:     slices.Clone(types),
		logger:    logger.With().Str("component", "event_relay").Str("transport", transport.Name()).Logger(),
		done:      make(chan struct{}),
	}
}

// NodeID identifies this instance on the transport.
func (r *Relay) NodeID() string {
	return r.nodeID
}

type localEvent struct {
	eventType events.EventType
	payload   events.Payload
}

// Start subscribes to the transport and the local bus, then relays until
// ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	remote, err := r.transport.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe %s relay: %w", r.transport.Name(), err)
	}

	local := make(chan localEvent, 32)
	subs := make(map[events.EventType]events.Subscriber, len(r.types))
	for _, et := range r.types {
		sub := r.bus.Subscribe(et)
		subs[et] = sub
		go func(et events.EventType, sub events.Subscriber) {
			for payload := range sub {
				select {
				case local <- localEvent{eventType: et, payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}(et, sub)
	}

	go func() {
		defer close(r.done)
		defer func() {
			for et, sub := range subs {
				r.bus.Unsubscribe(et, sub)
			}
		}()

		r.logger.Info().Str("node_id", r.nodeID).Int("event_types", len(r.types)).Msg("event relay started")
		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("event relay stopping")
				return
			case ev := <-local:
				r.publish(ctx, ev)
			case data, ok := <-remote:
				if !ok {
					remote = nil
					continue
				}
				r.deliver(data)
			}
		}
	}()
	return nil
}

// Done is closed once the relay has stopped after Start.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

func (r *Relay) publish(ctx context.Context, ev localEvent) {
	if _, relayed := ev.payload[OriginKey]; relayed {
		return
	}
	data, err := json.Marshal(message{
		EventType: ev.eventType,
		Payload:   ev.payload,
		Timestamp: time.Now().UTC(),
		NodeID:    r.nodeID,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", string(ev.eventType)).Msg("failed to encode relay message")
		telemetry.EventRelayMessages.WithLabelValues("out", "error").Inc()
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.transport.Publish(pubCtx, data); err != nil {
		r.logger.Warn().Err(err).Str("event_type", string(ev.eventType)).Msg("failed to relay event")
		telemetry.EventRelayMessages.WithLabelValues("out", "error").Inc()
		return
	}
	telemetry.EventRelayMessages.WithLabelValues("out", "ok").Inc()
}

func (r *Relay) deliver(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Warn().Err(err).Msg("dropping malformed relay message")
		telemetry.EventRelayMessages.WithLabelValues("in", "error").Inc()
		return
	}
	if msg.NodeID == r.nodeID || !slices.Contains(r.types, msg.EventType) {
		return
	}
	payload := msg.Payload
	if payload == nil {
		payload = events.Payload{}
	}
	payload[OriginKey] = msg.NodeID
	r.bus.Publish(msg.EventType, payload)
	telemetry.EventRelayMessages.WithLabelValues("in", "ok").Inc()
}
