package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KainCH/omniasylum-sub001/pkg/api/warden"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
	"github.com/KainCH/omniasylum-sub001/pkg/validation"
)

// PrepStream moves the tenant into the prepping state.
func (h *Handlers) PrepStream(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	tenant, err := h.lifecycle.Prep(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.dispatcher.InvalidateTenant(tenantID)
	h.streamStatusResponse(c, tenant)
}

// GoLive moves a prepping tenant live.
func (h *Handlers) GoLive(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	tenant, err := h.lifecycle.GoLive(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.dispatcher.InvalidateTenant(tenantID)
	h.streamStatusResponse(c, tenant)
}

// EndStream ends a live or prepping stream.
func (h *Handlers) EndStream(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	tenant, err := h.lifecycle.EndStream(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.dispatcher.InvalidateTenant(tenantID)
	h.streamStatusResponse(c, tenant)
}

// CancelPrep aborts a prep without touching counters.
func (h *Handlers) CancelPrep(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	tenant, err := h.lifecycle.CancelPrep(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.dispatcher.InvalidateTenant(tenantID)
	h.streamStatusResponse(c, tenant)
}

// StreamStatus reports the lifecycle state plus the stream start marker.
func (h *Handlers) StreamStatus(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	tenant, err := h.repo.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.streamStatusResponse(c, tenant)
}

func (h *Handlers) streamStatusResponse(c *gin.Context, tenant models.Tenant) {
	resp := warden.StreamStatusResponse{TenantID: tenant.TenantID, Status: tenant.StreamStatus}
	if counters, err := h.dispatcher.Counters(c.Request.Context(), tenant.TenantID); err == nil {
		resp.StreamStarted = counters.StreamStarted
	}
	c.JSON(http.StatusOK, resp)
}

// StartMonitor brings the upstream event session up. Success means the
// request was accepted; the real connection state arrives via
// eventSubStatusChanged room messages.
func (h *Handlers) StartMonitor(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	if err := h.supervisor.StartMonitoring(c.Request.Context(), tenantID); err != nil {
		h.writeError(c, err)
		return
	}
	respondOK(c, "monitoring started")
}

// StopMonitor tears the upstream session down.
func (h *Handlers) StopMonitor(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	h.supervisor.StopMonitoring(tenantID)
	respondOK(c, "monitoring stopped")
}

// ReconnectMonitor cycles the upstream session.
func (h *Handlers) ReconnectMonitor(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	if err := h.supervisor.ForceReconnect(c.Request.Context(), tenantID); err != nil {
		h.writeError(c, err)
		return
	}
	respondOK(c, "monitoring reconnected")
}

// MonitorStatus reports the upstream session state.
func (h *Handlers) MonitorStatus(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	status := h.supervisor.MonitorStatus(tenantID)
	c.JSON(http.StatusOK, warden.MonitorStatusResponse{
		Connected:     status.Connected,
		Subscriptions: status.Subscriptions,
		LastConnected: status.LastConnected,
	})
}

// ToggleBot starts or stops the chat session.
func (h *Handlers) ToggleBot(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	var req warden.BotToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", models.ErrInvalidInput, err))
		return
	}
	if err := validation.ValidateBotToggle(req.Action); err != nil {
		h.writeError(c, err)
		return
	}

	if req.Action == "start" {
		if err := h.supervisor.StartChat(c.Request.Context(), tenantID); err != nil {
			h.writeError(c, err)
			return
		}
		respondOK(c, "bot started")
		return
	}
	h.supervisor.StopChat(tenantID)
	respondOK(c, "bot stopped")
}

// BotStatus reports the chat session state.
func (h *Handlers) BotStatus(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	status := h.supervisor.ChatStatus(tenantID)
	c.JSON(http.StatusOK, warden.BotStatusResponse{
		Connected: status.Connected,
		Channel:   status.Channel,
	})
}
