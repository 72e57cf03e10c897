package models

import "time"

// Server → client message types on the subscriber protocol. The names are
// wire-compatible with the existing overlay and dashboard clients and must
// not change.
const (
	MsgCounterUpdate         = "counterUpdate"
	MsgStreamStatusChanged   = "streamStatusChanged"
	MsgStreamStarted         = "streamStarted" // legacy alias kept for old overlays
	MsgStreamEnded           = "streamEnded"   // legacy alias kept for old overlays
	MsgEventSubStatusChanged = "eventSubStatusChanged"
	MsgBotStatusChanged      = "twitchBotStatusChanged"
	MsgNewFollower           = "newFollower"
	MsgNewSubscription       = "newSubscription"
	MsgNewGiftSub            = "newGiftSub"
	MsgNewResub              = "newResub"
	MsgNewCheer              = "newCheer"
	MsgBitsReceived          = "bitsReceived"
	MsgRaidReceived          = "raidReceived"
	MsgRewardRedeemed        = "rewardRedeemed"
	MsgCustomAlert           = "customAlert"
	MsgMilestoneReached      = "milestoneReached"
	MsgStreamOnline          = "streamOnline"
	MsgStreamOffline         = "streamOffline"
	MsgAuthRevoked           = "authRevoked"
	MsgOverlaySettingsUpdate = "overlaySettingsUpdate"
	MsgRoomJoined            = "roomJoined"
	MsgStreamModeStatus      = "streamModeStatus"
	MsgPong                  = "pong"
	MsgError                 = "error"
)

// Client → server message types.
const (
	MsgIncrementDeaths     = "incrementDeaths"
	MsgDecrementDeaths     = "decrementDeaths"
	MsgIncrementSwears     = "incrementSwears"
	MsgDecrementSwears     = "decrementSwears"
	MsgResetCounters       = "resetCounters"
	MsgConnectTwitch       = "connectTwitch"
	MsgJoinRoom            = "joinRoom"
	MsgGetStreamStatus     = "getStreamStatus"
	MsgPing                = "ping"
	MsgStreamModeHeartbeat = "streamModeHeartbeat"
)

// RoomMessage is the wire envelope for the subscriber protocol.
type RoomMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewRoomMessage builds an envelope stamped with the current time.
func NewRoomMessage(msgType string, data interface{}) RoomMessage {
	return RoomMessage{Type: msgType, Data: data, Timestamp: time.Now().UTC()}
}

// CounterUpdateData is the payload of a counterUpdate message.
type CounterUpdateData struct {
	Counters Counters      `json:"counters"`
	Change   CounterChange `json:"change"`
	Source   string        `json:"source,omitempty"`
}

// MilestoneReachedData is the payload of a milestoneReached message.
type MilestoneReachedData struct {
	Kind              CounterKind `json:"kind"`
	Threshold         int64       `json:"threshold"`
	PreviousMilestone int64       `json:"previousMilestone"`
	Current           int64       `json:"current"`
}

// StreamStatusData is the payload of a streamStatusChanged message.
type StreamStatusData struct {
	TenantID string `json:"tenantId"`
	Status   string `json:"status"`
}

// SessionStatusData is the payload of eventSubStatusChanged and
// twitchBotStatusChanged messages.
type SessionStatusData struct {
	TenantID  string `json:"tenantId"`
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}

// CustomAlertData is the payload of a customAlert message: the resolved alert
// definition plus the event-specific fields. Placeholders inside the template
// are resolved client-side.
type CustomAlertData struct {
	Alert AlertDefinition `json:"alert"`
	Event EventPayload    `json:"event"`
	Kind  EventKind       `json:"kind"`
}

// RoomSnapshotData is the payload sent to a subscriber on joining a room.
type RoomSnapshotData struct {
	TenantID     string     `json:"tenantId"`
	Counters     Counters   `json:"counters"`
	StreamStatus string     `json:"streamStatus"`
	Features     FeatureSet `json:"features"`
}

// StreamModeStatusData is the reply to a streamModeHeartbeat.
type StreamModeStatusData struct {
	TenantID       string `json:"tenantId"`
	EventSubActive bool   `json:"eventSubActive"`
}
