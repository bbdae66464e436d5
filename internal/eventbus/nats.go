/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSTransport relays over a plain NATS subject.
type NATSTransport struct {
	conn    *nats.Conn
	subject string
	sub     *nats.Subscription
}

// NewNATSTransport creates a transport on subject. The caller owns conn.
func NewNATSTransport(conn *nats.Conn, subject string) *NATSTransport {
	return &NATSTransport{conn: conn, subject: subject}
}

func (t *NATSTransport) Name() string { return "nats" }

func (t *NATSTransport) Publish(_ context.Context, data []byte) error {
	if err := t.conn.Publish(t.subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", t.subject, err)
	}
	return nil
}

func (t *NATSTransport) Subscribe(ctx context.Context) (<-chan []byte, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := t.conn.ChanSubscribe(t.subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", t.subject, err)
	}
	t.sub = sub

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				select {
				case out <- msg.Data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *NATSTransport) Close() error {
	if t.sub == nil {
		return nil
	}
	return t.sub.Unsubscribe()
}
