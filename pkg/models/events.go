package models

import "time"

// EventKind names a normalized upstream or chat event.
type EventKind string

// Normalized event kinds emitted by the upstream event session and the chat
// session.
const (
	EventStreamOnline     EventKind = "stream-online"
	EventStreamOffline    EventKind = "stream-offline"
	EventFollow           EventKind = "follow"
	EventSubscribe        EventKind = "subscribe"
	EventSubscribeGift    EventKind = "subscribe-gift"
	EventSubscribeMessage EventKind = "subscribe-message"
	EventCheer            EventKind = "cheer"
	EventRaid             EventKind = "raid"
	EventRewardRedeemed   EventKind = "reward-redeemed"
	EventChatCommand      EventKind = "chat-command"
)

// KnownEventKind reports whether k is part of the normalized catalog.
func KnownEventKind(k EventKind) bool {
	switch k {
	case EventStreamOnline, EventStreamOffline, EventFollow, EventSubscribe,
		EventSubscribeGift, EventSubscribeMessage, EventCheer, EventRaid,
		EventRewardRedeemed, EventChatCommand:
		return true
	}
	return false
}

// EventPayload carries the event-specific fields of a normalized event.
// Only the fields relevant to the kind are populated.
type EventPayload struct {
	UserName    string `json:"userName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`

	// stream-online
	StreamID  string `json:"streamId,omitempty"`
	StartedAt string `json:"startedAt,omitempty"`

	// subscribe / subscribe-message / subscribe-gift
	Tier             string `json:"tier,omitempty"`
	Months           int    `json:"months,omitempty"`
	CumulativeMonths int    `json:"cumulativeMonths,omitempty"`
	IsGift           bool   `json:"isGift,omitempty"`
	Total            int    `json:"total,omitempty"`

	// cheer
	Bits    int    `json:"bits,omitempty"`
	Message string `json:"message,omitempty"`

	// raid
	Viewers int `json:"viewers,omitempty"`

	// reward-redeemed
	RewardID    string `json:"rewardId,omitempty"`
	RewardTitle string `json:"rewardTitle,omitempty"`
	UserInput   string `json:"userInput,omitempty"`

	// chat-command
	Command    string   `json:"command,omitempty"`
	Args       []string `json:"args,omitempty"`
	Privileged bool     `json:"privileged,omitempty"`
}

// UpstreamEvent is the uniform internal record every inbound event is
// normalized into before dispatch. Events for one tenant are dispatched in
// arrival order.
type UpstreamEvent struct {
	TenantID   string       `json:"tenantId"`
	Kind       EventKind    `json:"kind"`
	Payload    EventPayload `json:"payload"`
	ReceivedAt time.Time    `json:"receivedAt"`
}

// EventSubSubscription is an upstream subscription record owned by one
// upstream event session. Held in memory only; destroyed with the session.
type EventSubSubscription struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Status    string            `json:"status"`
}

// MonitorStatus reports the upstream event session state for a tenant.
type MonitorStatus struct {
	Connected     bool                   `json:"connected"`
	SessionID     string                 `json:"sessionId,omitempty"`
	Subscriptions []EventSubSubscription `json:"subscriptions"`
	LastConnected *time.Time             `json:"lastConnected,omitempty"`
}

// BotStatus reports the chat session state for a tenant.
type BotStatus struct {
	Connected bool   `json:"connected"`
	Channel   string `json:"channel,omitempty"`
}
