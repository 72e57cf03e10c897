package eventsub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// notificationEvent is the union of the upstream event fields we consume.
// Unknown fields are ignored.
type notificationEvent struct {
	UserName      string `json:"user_name"`
	UserLogin     string `json:"user_login"`
	FromUserName  string `json:"from_broadcaster_user_name"`
	FromUserLogin string `json:"from_broadcaster_user_login"`

	// stream.online
	ID        string `json:"id"`
	StartedAt string `json:"started_at"`

	// channel.subscribe / subscription.message / subscription.gift
	Tier             string `json:"tier"`
	IsGift           bool   `json:"is_gift"`
	Total            int    `json:"total"`
	CumulativeMonths int    `json:"cumulative_months"`
	DurationMonths   int    `json:"duration_months"`

	// channel.cheer
	Bits    int    `json:"bits"`
	Message string `json:"message"`

	// channel.raid
	Viewers int `json:"viewers"`

	// channel_points_custom_reward_redemption.add
	UserInput string `json:"user_input"`
	Reward    struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reward"`
}

// normalize converts one upstream notification into the internal event
// record. Unknown subscription types return an error and are dropped by the
// caller.
func normalize(tenantID, subscriptionType string, raw json.RawMessage, receivedAt time.Time) (models.UpstreamEvent, error) {
	var ev notificationEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return models.UpstreamEvent{}, fmt.Errorf("decode %s event: %w", subscriptionType, err)
	}

	out := models.UpstreamEvent{
		TenantID:   tenantID,
		ReceivedAt: receivedAt,
		Payload: models.EventPayload{
			UserName:    ev.UserLogin,
			DisplayName: ev.UserName,
		},
	}

	switch subscriptionType {
	case "stream.online":
		out.Kind = models.EventStreamOnline
		out.Payload.StreamID = ev.ID
		out.Payload.StartedAt = ev.StartedAt
	case "stream.offline":
		out.Kind = models.EventStreamOffline
	case "channel.follow":
		out.Kind = models.EventFollow
	case "channel.subscribe":
		out.Kind = models.EventSubscribe
		out.Payload.Tier = ev.Tier
		out.Payload.IsGift = ev.IsGift
	case "channel.subscription.gift":
		out.Kind = models.EventSubscribeGift
		out.Payload.Tier = ev.Tier
		out.Payload.Total = ev.Total
	case "channel.subscription.message":
		out.Kind = models.EventSubscribeMessage
		out.Payload.Tier = ev.Tier
		out.Payload.Months = ev.DurationMonths
		out.Payload.CumulativeMonths = ev.CumulativeMonths
	case "channel.cheer":
		out.Kind = models.EventCheer
		out.Payload.Bits = ev.Bits
		out.Payload.Message = ev.Message
	case "channel.raid":
		out.Kind = models.EventRaid
		out.Payload.Viewers = ev.Viewers
		out.Payload.UserName = ev.FromUserLogin
		out.Payload.DisplayName = ev.FromUserName
	case "channel.channel_points_custom_reward_redemption.add":
		out.Kind = models.EventRewardRedeemed
		out.Payload.RewardID = ev.Reward.ID
		out.Payload.RewardTitle = ev.Reward.Title
		out.Payload.UserInput = ev.UserInput
	default:
		return models.UpstreamEvent{}, fmt.Errorf("unknown subscription type %q", subscriptionType)
	}
	return out, nil
}
