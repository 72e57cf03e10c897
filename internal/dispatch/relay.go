package dispatch

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/KainCH/omniasylum-sub001/pkg/models"
	"github.com/KainCH/omniasylum-sub001/pkg/redis"
)

// RelayChannel is the pub/sub channel room messages cross instances on.
const RelayChannel = "warden:rooms"

// RelayEnvelope wraps a room message with its tenant and origin instance so
// receivers can skip their own publications.
type RelayEnvelope struct {
	Origin   string             `json:"origin"`
	TenantID string             `json:"tenantId"`
	Message  models.RoomMessage `json:"message"`
}

// RedisRelay fans room messages out to sibling instances over redis pub/sub.
type RedisRelay struct {
	instanceID string
	pubsub     *redis.TypedPubSub[RelayEnvelope]
}

// NewRedisRelay builds a relay identified by instanceID.
func NewRedisRelay(client goredis.UniversalClient, instanceID string) *RedisRelay {
	return &RedisRelay{
		instanceID: instanceID,
		pubsub:     redis.NewTypedPubSub[RelayEnvelope](client),
	}
}

// PublishRoomMessage sends a message to every subscribed instance.
func (r *RedisRelay) PublishRoomMessage(ctx context.Context, tenantID string, msg models.RoomMessage) error {
	return r.pubsub.Publish(ctx, RelayChannel, RelayEnvelope{
		Origin:   r.instanceID,
		TenantID: tenantID,
		Message:  msg,
	})
}

// Subscribe delivers messages published by other instances to the local hub.
// Blocks until ctx is done.
func (r *RedisRelay) Subscribe(ctx context.Context, hub Broadcaster) error {
	return r.pubsub.Subscribe(ctx, RelayChannel, func(env RelayEnvelope) {
		if env.Origin == r.instanceID {
			return
		}
		hub.BroadcastToTenant(env.TenantID, env.Message)
	})
}
