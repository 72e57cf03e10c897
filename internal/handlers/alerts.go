package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/KainCH/omniasylum-sub001/pkg/api/warden"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
	"github.com/KainCH/omniasylum-sub001/pkg/validation"
)

// ListAlerts returns defaults plus the tenant's custom definitions.
func (h *Handlers) ListAlerts(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	alerts, err := h.repo.ListAlerts(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, warden.AlertListResponse{Alerts: alerts})
}

// CreateAlert adds a custom alert definition.
func (h *Handlers) CreateAlert(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	var req warden.AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", models.ErrInvalidInput, err))
		return
	}
	if err := validation.ValidateAlertRequest(&req); err != nil {
		h.writeError(c, err)
		return
	}

	alert := alertFromRequest(req)
	alert.AlertID = uuid.NewString()
	if err := h.repo.PutAlert(c.Request.Context(), tenantID, alert); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, alert)
}

// UpdateAlert replaces a custom alert definition. Built-in defaults are
// read-only.
func (h *Handlers) UpdateAlert(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	alertID := c.Param("alertId")
	existing, err := h.repo.GetAlert(c.Request.Context(), tenantID, alertID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if existing.IsDefault {
		h.writeError(c, fmt.Errorf("%w: default alerts are read-only", models.ErrConflict))
		return
	}

	var req warden.AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", models.ErrInvalidInput, err))
		return
	}
	if err := validation.ValidateAlertRequest(&req); err != nil {
		h.writeError(c, err)
		return
	}

	alert := alertFromRequest(req)
	alert.AlertID = alertID
	if err := h.repo.PutAlert(c.Request.Context(), tenantID, alert); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// DeleteAlert removes a custom alert definition. Built-in defaults are
// read-only and any mapping entries pointing at the deleted alert fall back
// to disabled.
func (h *Handlers) DeleteAlert(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	alertID := c.Param("alertId")
	existing, err := h.repo.GetAlert(c.Request.Context(), tenantID, alertID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if existing.IsDefault {
		h.writeError(c, fmt.Errorf("%w: default alerts cannot be deleted", models.ErrConflict))
		return
	}

	ctx := c.Request.Context()
	if err := h.repo.DeleteAlert(ctx, tenantID, alertID); err != nil {
		h.writeError(c, err)
		return
	}

	if mapping, merr := h.repo.GetEventMapping(ctx, tenantID); merr == nil {
		changed := false
		for event, id := range mapping.Mappings {
			if id == alertID {
				mapping.Mappings[event] = models.MappingNone
				changed = true
			}
		}
		if changed {
			if err := h.repo.PutEventMapping(ctx, tenantID, mapping); err != nil {
				h.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Failed to scrub mapping after alert delete")
			}
		}
	}
	respondOK(c, "alert deleted")
}

// GetEventMappings returns the tenant's event-to-alert mapping.
func (h *Handlers) GetEventMappings(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	mapping, err := h.repo.GetEventMapping(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping)
}

// PutEventMappings replaces the mapping. Every referenced alert must exist.
func (h *Handlers) PutEventMappings(c *gin.Context) {
	tenantID, ok := h.actingTenant(c)
	if !ok {
		return
	}
	var req warden.EventMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", models.ErrInvalidInput, err))
		return
	}
	if err := validation.ValidateEventMapping(req.Mappings); err != nil {
		h.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	for event, alertID := range req.Mappings {
		if alertID == models.MappingNone {
			continue
		}
		if _, err := h.repo.GetAlert(ctx, tenantID, alertID); err != nil {
			h.writeError(c, fmt.Errorf("%w: alert %s for event %s", models.ErrNotFound, alertID, event))
			return
		}
	}

	mapping := models.EventMapping{Mappings: req.Mappings, UpdatedAt: time.Now().UTC()}
	if err := h.repo.PutEventMapping(ctx, tenantID, mapping); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping)
}

func alertFromRequest(req warden.AlertRequest) models.AlertDefinition {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return models.AlertDefinition{
		Type:            req.Type,
		Name:            strings.TrimSpace(req.Name),
		Enabled:         enabled,
		TextTemplate:    req.TextTemplate,
		DurationMs:      req.DurationMs,
		BackgroundColor: req.BackgroundColor,
		TextColor:       req.TextColor,
		BorderColor:     req.BorderColor,
		Effects:         req.Effects,
	}
}
