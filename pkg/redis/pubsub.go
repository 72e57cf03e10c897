package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// TypedPubSub publishes and consumes one JSON-encoded message type on Redis
// channels. Payloads that fail to decode are counted and skipped so one
// malformed publisher cannot stall a subscription loop.
type TypedPubSub[T any] struct {
	client  goredis.UniversalClient
	onError func(channel string, err error)
}

// Option configures a TypedPubSub.
type Option func(*config)

type config struct {
	onError func(channel string, err error)
}

// WithDecodeErrorHandler installs a callback for payloads that fail to
// unmarshal. Without it, bad payloads are dropped silently.
func WithDecodeErrorHandler(fn func(channel string, err error)) Option {
	return func(c *config) { c.onError = fn }
}

// NewTypedPubSub wraps client for message type T.
func NewTypedPubSub[T any](client goredis.UniversalClient, opts ...Option) *TypedPubSub[T] {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TypedPubSub[T]{client: client, onError: cfg.onError}
}

// Publish marshals msg and sends it on channel.
func (p *TypedPubSub[T]) Publish(ctx context.Context, channel string, msg T) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal pubsub payload: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Subscribe consumes channel until ctx is done, invoking handler for every
// decodable message. It confirms the subscription before returning control
// to the Redis read loop, so an immediate connection failure surfaces as an
// error instead of a silent no-op.
func (p *TypedPubSub[T]) Subscribe(ctx context.Context, channel string, handler func(T)) error {
	sub := p.client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to redis: %w", err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var payload T
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				if p.onError != nil {
					p.onError(channel, err)
				}
				continue
			}
			handler(payload)
		}
	}
}
