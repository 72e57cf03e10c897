package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/KainCH/omniasylum-sub001/pkg/clients"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// defaultWebhookTimeout bounds each external POST when no timeout is
// configured. Webhook delivery is best-effort and never retried.
const defaultWebhookTimeout = 5 * time.Second

// Embed color hints, Discord-compatible decimal RGB.
const (
	colorLive      = 0xe91916
	colorMilestone = 0xffd700
	colorRaid      = 0xff4500
)

// WebhookField is one name/value pair inside an embed.
type WebhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// WebhookEmbed is the Discord-style notification document POSTed to a
// tenant's external webhook.
type WebhookEmbed struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	ColorHint    int            `json:"colorHint"`
	Fields       []WebhookField `json:"fields,omitempty"`
	ThumbnailURL string         `json:"thumbnailUrl,omitempty"`
	ImageURL     string         `json:"imageUrl,omitempty"`
	URL          string         `json:"url,omitempty"`
}

// WebhookSender POSTs embeds to per-tenant webhook URLs.
type WebhookSender struct {
	client  *http.Client
	timeout time.Duration
	logger  logging.Logger
}

// NewWebhookSender builds a sender with the shared transport. A timeout of
// zero or less falls back to the 5 second default.
func NewWebhookSender(timeout time.Duration, logger logging.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookSender{
		client:  &http.Client{Timeout: timeout, Transport: clients.DefaultTransport()},
		timeout: timeout,
		logger:  logger,
	}
}

// Send delivers one embed. Any failure is returned for logging; callers never
// retry.
func (w *WebhookSender) Send(ctx context.Context, url string, embed WebhookEmbed) error {
	body, err := json.Marshal(embed)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

// sendWebhook is the dispatcher's best-effort path: missing URL means the
// tenant opted out.
func (d *Dispatcher) sendWebhook(ctx context.Context, tenant models.Tenant, embed WebhookEmbed) {
	if tenant.ExternalWebhookURL == "" {
		return
	}
	if err := d.webhook.Send(ctx, tenant.ExternalWebhookURL, embed); err != nil {
		d.logger.WithError(err).WithField("tenant_id", tenant.TenantID).Warn("Webhook delivery failed")
	}
}

func streamOnlineEmbed(tenant models.Tenant, p models.EventPayload) WebhookEmbed {
	return WebhookEmbed{
		Title:       fmt.Sprintf("%s is live!", tenant.DisplayName),
		Description: "The stream just started. Come hang out!",
		ColorHint:   colorLive,
		URL:         "https://twitch.tv/" + tenant.Username,
		Fields: []WebhookField{
			{Name: "Started", Value: p.StartedAt, Inline: true},
		},
	}
}

func milestoneEmbed(tenant models.Tenant, m models.Milestone) WebhookEmbed {
	return WebhookEmbed{
		Title:       "Milestone reached!",
		Description: fmt.Sprintf("%s just hit %d %s.", tenant.DisplayName, m.Threshold, m.Kind),
		ColorHint:   colorMilestone,
		Fields: []WebhookField{
			{Name: "Threshold", Value: fmt.Sprintf("%d", m.Threshold), Inline: true},
			{Name: "Previous", Value: fmt.Sprintf("%d", m.PreviousMilestone), Inline: true},
		},
	}
}

func raidEmbed(p models.EventPayload) WebhookEmbed {
	return WebhookEmbed{
		Title:       "Incoming raid!",
		Description: fmt.Sprintf("%s is raiding with %d viewers.", displayName(p), p.Viewers),
		ColorHint:   colorRaid,
	}
}
