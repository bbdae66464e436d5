/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// RedisPublisher is the slice of *redis.Client the Redis sink uses.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes events as JSON on a Redis pub/sub channel.
type RedisSink struct {
	client  RedisPublisher
	channel string
}

// NewRedisSink creates a Redis sink.
func NewRedisSink(client RedisPublisher, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal redis message: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}
	return nil
}

// NATSPublisher is the slice of *nats.Conn the NATS sink uses.
type NATSPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSSink publishes events on <prefix>.<kind>, e.g.
// parkbay.reservations.confirmed.
type NATSSink struct {
	conn   NATSPublisher
	prefix string
}

// NewNATSSink creates a NATS sink.
func NewNATSSink(conn NATSPublisher, prefix string) *NATSSink {
	return &NATSSink{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// ConnectNATS dials a NATS server with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject an event kind is published on.
func (s *NATSSink) Subject(k Kind) string {
	return s.prefix + "." + strings.ToLower(string(k))
}

func (s *NATSSink) Deliver(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal nats message: %w", err)
	}
	msg := nats.NewMsg(s.Subject(ev.Kind))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, ev.ReservationID+":"+string(ev.Kind)+":"+fmt.Sprint(ev.OccurredAt.UnixNano()))
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", msg.Subject, err)
	}
	return nil
}
