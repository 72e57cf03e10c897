package kafka

import (
	"time"

	"github.com/google/uuid"

	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// DefaultTopic is the firehose topic overlay events are published to.
const DefaultTopic = "overlay_events"

// OverlayEvent is the analytics record published for every dispatched event
// when the tenant has the analytics feature enabled. Events are ephemeral;
// the firehose is best-effort and never blocks dispatch.
type OverlayEvent struct {
	EventID       string              `json:"event_id"`
	EventType     string              `json:"event_type"`
	Timestamp     time.Time           `json:"timestamp"`
	Source        string              `json:"source"`
	TenantID      string              `json:"tenant_id"`
	StreamID      *string             `json:"stream_id,omitempty"`
	Payload       models.EventPayload `json:"payload"`
	SchemaVersion string              `json:"schema_version"`
}

// NewOverlayEvent builds a firehose record from a normalized upstream event.
func NewOverlayEvent(ev models.UpstreamEvent) OverlayEvent {
	out := OverlayEvent{
		EventID:       uuid.New().String(),
		EventType:     string(ev.Kind),
		Timestamp:     ev.ReceivedAt,
		Source:        "warden",
		TenantID:      ev.TenantID,
		Payload:       ev.Payload,
		SchemaVersion: "1.0",
	}
	if ev.Payload.StreamID != "" {
		id := ev.Payload.StreamID
		out.StreamID = &id
	}
	return out
}

// ProducerInterface defines the operations the dispatcher needs from a
// firehose producer.
type ProducerInterface interface {
	PublishOverlayEvent(event OverlayEvent) error
	Close() error
	HealthCheck() error
}
