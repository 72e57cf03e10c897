package models

import "time"

// Tenant roles
const (
	RoleAdmin    = "admin"
	RoleStreamer = "streamer"
	RoleMod      = "mod"
)

// Stream lifecycle statuses
const (
	StatusOffline  = "offline"
	StatusPrepping = "prepping"
	StatusLive     = "live"
	StatusEnding   = "ending"
)

// FeatureSet holds the per-tenant capability flags. Stored as a JSON object
// on the tenant record; the store adapter is the only place aware of the
// encoding.
type FeatureSet struct {
	ChatCommands         bool `json:"chatCommands"`
	ChannelPoints        bool `json:"channelPoints"`
	DiscordNotifications bool `json:"discordNotifications"`
	StreamOverlay        bool `json:"streamOverlay"`
	AlertAnimations      bool `json:"alertAnimations"`
	Analytics            bool `json:"analytics"`
}

// NotificationSettings gates the out-of-band sinks per event class.
type NotificationSettings struct {
	StreamOnline bool `json:"streamOnline"`
	Milestones   bool `json:"milestones"`
	Raids        bool `json:"raids"`
}

// ThresholdConfig holds the ordered milestone threshold lists per counter.
type ThresholdConfig struct {
	Deaths  []int64 `json:"deaths,omitempty"`
	Swears  []int64 `json:"swears,omitempty"`
	Screams []int64 `json:"screams,omitempty"`
}

// ForKind returns the threshold list for a counter kind.
func (t ThresholdConfig) ForKind(kind CounterKind) []int64 {
	switch kind {
	case KindDeaths:
		return t.Deaths
	case KindSwears:
		return t.Swears
	case KindScreams:
		return t.Screams
	default:
		return nil
	}
}

// Tenant is one streamer account, the unit of isolation. Created on first
// credential bind, mutated by the lifecycle controller and admin operations.
type Tenant struct {
	TenantID           string                 `json:"tenantId"`
	Username           string                 `json:"username"`
	DisplayName        string                 `json:"displayName"`
	Role               string                 `json:"role"`
	Features           FeatureSet             `json:"features"`
	StreamStatus       string                 `json:"streamStatus"`
	ManagedTenants     []string               `json:"managedTenants,omitempty"`
	ExternalWebhookURL string                 `json:"externalWebhookUrl,omitempty"`
	Notifications      NotificationSettings   `json:"notifications"`
	OverlaySettings    map[string]interface{} `json:"overlaySettings,omitempty"`
	CounterThresholds  ThresholdConfig        `json:"counterThresholds"`
	RewardCounterMap   map[string]CounterKind `json:"rewardCounterMap,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
}

// Manages reports whether the tenant may act on behalf of target. A tenant
// always manages itself; mods manage the tenants listed in ManagedTenants.
func (t *Tenant) Manages(target string) bool {
	if t.TenantID == target {
		return true
	}
	for _, id := range t.ManagedTenants {
		if id == target {
			return true
		}
	}
	return false
}
