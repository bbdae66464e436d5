/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/parkbay/internal/auth"
	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/telemetry"
)

const eventPingInterval = 15 * time.Second

type streamedEvent struct {
	eventType events.EventType
	payload   events.Payload
}

// allowedEventTypes narrows the requested types to what the caller may see.
// Only admins receive sweep reports.
func allowedEventTypes(claims *auth.Claims, requested []events.EventType) []events.EventType {
	allowed := slices.Clone(events.OwnerEventTypes)
	if claims.IsAdmin() {
		allowed = append(allowed, events.EventSweepCompleted)
	}
	if len(requested) == 0 {
		return allowed
	}
	out := make([]events.EventType, 0, len(requested))
	for _, t := range requested {
		if slices.Contains(allowed, t) && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// visible reports whether a reservation event belongs to the caller.
func visible(claims *auth.Claims, eventType events.EventType, payload events.Payload) bool {
	if claims.IsAdmin() || eventType == events.EventSweepCompleted {
		return claims.IsAdmin()
	}
	owner, _ := payload["owner_id"].(string)
	return owner != "" && owner == claims.UserID
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	eventTypes := allowedEventTypes(claims, parseEventTypes(r.URL.Query().Get("types")))
	if len(eventTypes) == 0 {
		writeError(w, http.StatusBadRequest, "no_permitted_event_types")
		return
	}

	// Subscribe before the handshake completes so nothing published after
	// the client sees the upgrade is missed.
	subs := make([]events.Subscriber, len(eventTypes))
	for i, eventType := range eventTypes {
		subs[i] = a.bus.Subscribe(eventType)
		defer a.bus.Unsubscribe(eventType, subs[i])
	}

	conn, err := ws.Accept(w, r, nil)
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.EventStreamConnections.Inc()
	defer telemetry.EventStreamConnections.Dec()

	// CloseRead discards client frames and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	merged := make(chan streamedEvent, 16)
	for i, eventType := range eventTypes {
		go forward(ctx, eventType, subs[i], merged)
	}

	a.logger.Debug().Str("user_id", claims.UserID).Int("types", len(eventTypes)).Msg("event stream opened")

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev := <-merged:
			if !visible(claims, ev.eventType, ev.payload) {
				continue
			}
			if err := writeEvent(ctx, conn, ev.eventType, ev.payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// forward copies one subscription into the merged stream until the
// subscription is closed or the stream ends.
func forward(ctx context.Context, eventType events.EventType, sub events.Subscriber, out chan<- streamedEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			select {
			case out <- streamedEvent{eventType: eventType, payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}
