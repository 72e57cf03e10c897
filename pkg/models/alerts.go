package models

import "time"

// Alert types
const (
	AlertTypeFollow       = "follow"
	AlertTypeSubscription = "subscription"
	AlertTypeResub        = "resub"
	AlertTypeGiftSub      = "giftsub"
	AlertTypeBits         = "bits"
	AlertTypeRaid         = "raid"
	AlertTypeHypeTrain    = "hypetrain"
	AlertTypeCustom       = "custom"
)

// Alert duration bounds in milliseconds.
const (
	MinAlertDurationMs = 1000
	MaxAlertDurationMs = 30000
)

// MappingNone disables overlay alerts for an event in the event mapping.
const MappingNone = "none"

// AlertEffects are the client-side presentation toggles of an alert.
type AlertEffects struct {
	Sound       bool `json:"sound"`
	Animation   bool `json:"animation"`
	ScreenShake bool `json:"screenShake"`
}

// AlertDefinition is a reusable overlay alert template. Template placeholders
// ({username}, {amount}, {months}, {tier}) are resolved by the client, never
// pre-rendered by the server. Definitions flagged IsDefault are read-only.
type AlertDefinition struct {
	AlertID         string       `json:"alertId"`
	Type            string       `json:"type"`
	Name            string       `json:"name"`
	Enabled         bool         `json:"enabled"`
	TextTemplate    string       `json:"textTemplate"`
	DurationMs      int          `json:"durationMs"`
	BackgroundColor string       `json:"backgroundColor,omitempty"`
	TextColor       string       `json:"textColor,omitempty"`
	BorderColor     string       `json:"borderColor,omitempty"`
	Effects         AlertEffects `json:"effects"`
	IsDefault       bool         `json:"isDefault"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// ValidAlertType reports whether t is a known alert type.
func ValidAlertType(t string) bool {
	switch t {
	case AlertTypeFollow, AlertTypeSubscription, AlertTypeResub, AlertTypeGiftSub,
		AlertTypeBits, AlertTypeRaid, AlertTypeHypeTrain, AlertTypeCustom:
		return true
	}
	return false
}

// DefaultAlertID returns the well-known id of the built-in alert for a type.
func DefaultAlertID(alertType string) string {
	return "default-" + alertType
}

// DefaultAlerts returns the read-only built-in alert set, one per type.
func DefaultAlerts() []AlertDefinition {
	mk := func(alertType, name, template, bg string) AlertDefinition {
		return AlertDefinition{
			AlertID:         DefaultAlertID(alertType),
			Type:            alertType,
			Name:            name,
			Enabled:         true,
			TextTemplate:    template,
			DurationMs:      5000,
			BackgroundColor: bg,
			TextColor:       "#ffffff",
			BorderColor:     "#ffffff",
			Effects:         AlertEffects{Sound: true, Animation: true},
			IsDefault:       true,
		}
	}
	return []AlertDefinition{
		mk(AlertTypeFollow, "New Follower", "{username} just followed!", "#9146ff"),
		mk(AlertTypeSubscription, "New Subscriber", "{username} just subscribed!", "#9146ff"),
		mk(AlertTypeResub, "Resub", "{username} resubscribed for {months} months!", "#9146ff"),
		mk(AlertTypeGiftSub, "Gift Subs", "{username} gifted {amount} subs!", "#b5495b"),
		mk(AlertTypeBits, "Bits", "{username} cheered {amount} bits!", "#4b367c"),
		mk(AlertTypeRaid, "Raid", "{username} is raiding with {amount} viewers!", "#ff4500"),
		mk(AlertTypeHypeTrain, "Hype Train", "Hype train level {amount}!", "#ff6b00"),
		mk(AlertTypeCustom, "Custom Alert", "{username} triggered an alert!", "#1f1f23"),
	}
}

// EventMapping maps normalized upstream event kinds to an alert id, or
// MappingNone to disable overlay alerts for that event.
type EventMapping struct {
	Mappings  map[string]string `json:"mappings"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// AlertFor resolves the alert id mapped to an event kind. Returns "" when the
// event is unmapped or explicitly disabled.
func (m *EventMapping) AlertFor(kind EventKind) string {
	if m == nil || m.Mappings == nil {
		return ""
	}
	id, ok := m.Mappings[string(kind)]
	if !ok || id == MappingNone {
		return ""
	}
	return id
}

// DefaultEventMapping wires every alert-bearing event kind to its built-in
// default alert.
func DefaultEventMapping() EventMapping {
	return EventMapping{
		Mappings: map[string]string{
			string(EventFollow):           DefaultAlertID(AlertTypeFollow),
			string(EventSubscribe):        DefaultAlertID(AlertTypeSubscription),
			string(EventSubscribeMessage): DefaultAlertID(AlertTypeResub),
			string(EventSubscribeGift):    DefaultAlertID(AlertTypeGiftSub),
			string(EventCheer):            DefaultAlertID(AlertTypeBits),
			string(EventRaid):             DefaultAlertID(AlertTypeRaid),
			string(EventRewardRedeemed):   MappingNone,
		},
	}
}
