package handlers

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/KainCH/omniasylum-sub001/internal/dispatch"
	"github.com/KainCH/omniasylum-sub001/pkg/api/common"
	"github.com/KainCH/omniasylum-sub001/pkg/api/warden"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// GetOverlaySettings returns the opaque overlay settings document. The server
// never interprets its contents.
func (h *Handlers) GetOverlaySettings(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	tenant, err := h.repo.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	settings := tenant.OverlaySettings
	if settings == nil {
		settings = map[string]interface{}{}
	}
	c.JSON(http.StatusOK, warden.OverlaySettingsResponse{Settings: settings})
}

// PutOverlaySettings replaces the document and tells connected overlays to
// re-render.
func (h *Handlers) PutOverlaySettings(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	var settings map[string]interface{}
	if err := c.ShouldBindJSON(&settings); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", models.ErrInvalidInput, err))
		return
	}

	ctx := c.Request.Context()
	tenant, err := h.repo.GetTenant(ctx, tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	tenant.OverlaySettings = settings
	if err := h.repo.PutTenant(ctx, tenant); err != nil {
		h.writeError(c, err)
		return
	}
	h.dispatcher.InvalidateTenant(tenantID)
	h.dispatcher.Broadcast(ctx, tenantID, models.NewRoomMessage(models.MsgOverlaySettingsUpdate,
		warden.OverlaySettingsResponse{Settings: settings}))
	c.JSON(http.StatusOK, warden.OverlaySettingsResponse{Settings: settings})
}

// PutWebhook sets the external webhook URL; an empty URL clears it.
func (h *Handlers) PutWebhook(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	var req warden.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", models.ErrInvalidInput, err))
		return
	}
	if req.URL != "" {
		u, err := url.Parse(req.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			h.writeError(c, fmt.Errorf("%w: webhook url must be http(s)", models.ErrInvalidInput))
			return
		}
	}

	ctx := c.Request.Context()
	tenant, err := h.repo.GetTenant(ctx, tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	tenant.ExternalWebhookURL = req.URL
	if err := h.repo.PutTenant(ctx, tenant); err != nil {
		h.writeError(c, err)
		return
	}
	h.dispatcher.InvalidateTenant(tenantID)
	respondOK(c, "webhook updated")
}

// TestWebhook fires a sample embed at the configured URL. Best-effort like
// real deliveries, but the caller gets the outcome.
func (h *Handlers) TestWebhook(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	tenant, err := h.repo.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if tenant.ExternalWebhookURL == "" {
		h.writeError(c, fmt.Errorf("%w: no webhook configured", models.ErrInvalidInput))
		return
	}

	embed := dispatch.WebhookEmbed{
		Title:       "Test notification",
		Description: fmt.Sprintf("Webhook for %s is working.", tenant.DisplayName),
		ColorHint:   0x9146ff,
	}
	if err := h.webhook.Send(c.Request.Context(), tenant.ExternalWebhookURL, embed); err != nil {
		c.JSON(http.StatusInternalServerError, common.ErrorResponse{
			Error:   "webhook delivery failed",
			Details: map[string]interface{}{"cause": err.Error()},
		})
		return
	}
	respondOK(c, "test notification delivered")
}
