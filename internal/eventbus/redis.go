/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTransport relays over a Redis pub/sub channel.
type RedisTransport struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
}

// NewRedisTransport creates a transport on channel. The caller owns client.
func NewRedisTransport(client *redis.Client, channel string) *RedisTransport {
	return &RedisTransport{client: client, channel: channel}
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Publish(ctx context.Context, data []byte) error {
	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", t.channel, err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := t.client.Subscribe(ctx, t.channel)
	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", t.channel, err)
	}
	t.pubsub = pubsub

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *RedisTransport) Close() error {
	if t.pubsub == nil {
		return nil
	}
	return t.pubsub.Close()
}
