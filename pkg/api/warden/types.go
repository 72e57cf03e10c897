// Package warden defines the HTTP request and response documents of the
// event broker API.
package warden

import (
	"time"

	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// CounterResponse is the post-state document returned by counter mutations
// and reads.
type CounterResponse struct {
	Counters models.Counters      `json:"counters"`
	Change   models.CounterChange `json:"change"`
}

// SaveSeriesRequest starts a named series snapshot.
type SaveSeriesRequest struct {
	SeriesName  string `json:"seriesName"`
	Description string `json:"description,omitempty"`
}

// LoadSeriesRequest restores a snapshot onto current counters.
type LoadSeriesRequest struct {
	SeriesID string `json:"seriesId"`
}

// SeriesListResponse lists a tenant's snapshots, newest first.
type SeriesListResponse struct {
	Series []models.SeriesSnapshot `json:"series"`
}

// StreamStatusResponse reports the lifecycle state of a tenant.
type StreamStatusResponse struct {
	TenantID      string     `json:"tenantId"`
	Status        string     `json:"status"`
	StreamStarted *time.Time `json:"streamStarted,omitempty"`
}

// MonitorStatusResponse reports the upstream event session state.
type MonitorStatusResponse struct {
	Connected     bool                          `json:"connected"`
	Subscriptions []models.EventSubSubscription `json:"subscriptions"`
	LastConnected *time.Time                    `json:"lastConnected,omitempty"`
}

// BotToggleRequest starts or stops the chat session.
type BotToggleRequest struct {
	Action string `json:"action"` // "start" or "stop"
}

// BotStatusResponse reports the chat session state.
type BotStatusResponse struct {
	Connected bool   `json:"connected"`
	Channel   string `json:"channel,omitempty"`
}

// AlertRequest creates or updates an alert definition.
type AlertRequest struct {
	Type            string              `json:"type"`
	Name            string              `json:"name"`
	Enabled         *bool               `json:"enabled,omitempty"`
	TextTemplate    string              `json:"textTemplate"`
	DurationMs      int                 `json:"durationMs"`
	BackgroundColor string              `json:"backgroundColor,omitempty"`
	TextColor       string              `json:"textColor,omitempty"`
	BorderColor     string              `json:"borderColor,omitempty"`
	Effects         models.AlertEffects `json:"effects"`
}

// AlertListResponse lists alert definitions, defaults first.
type AlertListResponse struct {
	Alerts []models.AlertDefinition `json:"alerts"`
}

// EventMappingRequest replaces the tenant's event-to-alert mapping.
type EventMappingRequest struct {
	Mappings map[string]string `json:"mappings"`
}

// WebhookRequest sets the external webhook URL ("" clears it).
type WebhookRequest struct {
	URL string `json:"url"`
}

// BindRequest binds an upstream credential tuple to a tenant. The OAuth
// exchange that produced the tuple happens outside this service.
type BindRequest struct {
	TenantID     string   `json:"tenantId"`
	Username     string   `json:"username"`
	DisplayName  string   `json:"displayName,omitempty"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn    int      `json:"expiresIn"` // seconds
	Scopes       []string `json:"scopes,omitempty"`
}

// BindResponse returns the subscriber bearer token for the bound tenant.
type BindResponse struct {
	Token     string        `json:"token"`
	Tenant    models.Tenant `json:"tenant"`
	ExpiresIn int           `json:"expiresIn"`
}

// TokenRequest re-issues a subscriber token for a known tenant.
type TokenRequest struct {
	TenantID string `json:"tenantId"`
}

// OverlaySettingsResponse carries the opaque overlay settings document.
type OverlaySettingsResponse struct {
	Settings map[string]interface{} `json:"settings"`
}

// UserListResponse lists tenants for the admin surface.
type UserListResponse struct {
	Users []models.Tenant `json:"users"`
}
