package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/KainCH/omniasylum-sub001/pkg/api/warden"
	"github.com/KainCH/omniasylum-sub001/pkg/auth"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
	"github.com/KainCH/omniasylum-sub001/pkg/validation"
)

// BindCredentials upserts a tenant and its credential tuple, then issues the
// subscriber bearer token. The OAuth code exchange that produced the tuple
// happens outside this service.
func (h *Handlers) BindCredentials(c *gin.Context) {
	var req warden.BindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", models.ErrInvalidInput, err))
		return
	}
	if err := validation.ValidateBindRequest(&req); err != nil {
		h.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = uuid.NewString()
	}

	tenant, err := h.repo.GetTenant(ctx, tenantID)
	if err != nil {
		tenant = newTenant(tenantID, req)
	} else {
		tenant.Username = strings.ToLower(strings.TrimSpace(req.Username))
		if req.DisplayName != "" {
			tenant.DisplayName = req.DisplayName
		}
	}
	if err := h.repo.PutTenant(ctx, tenant); err != nil {
		h.writeError(c, err)
		return
	}
	h.dispatcher.InvalidateTenant(tenantID)

	creds := models.Credentials{
		TenantID:     tenantID,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(req.ExpiresIn) * time.Second),
		Scopes:       req.Scopes,
	}
	if err := h.broker.Bind(ctx, creds); err != nil {
		h.writeError(c, err)
		return
	}

	token, err := auth.GenerateJWT(tenantID, tenantID, tenant.Username, tenant.Role, h.cfg.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.WithFields(logging.Fields{
		"tenant_id": tenantID,
		"username":  tenant.Username,
	}).Info("Credentials bound")

	c.JSON(http.StatusOK, warden.BindResponse{
		Token:     token,
		Tenant:    tenant,
		ExpiresIn: int(auth.DefaultTokenTTL.Seconds()),
	})
}

// IssueToken re-issues a subscriber JWT for a known tenant. Guarded by the
// service token; used by the dashboard backend.
func (h *Handlers) IssueToken(c *gin.Context) {
	var req warden.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TenantID == "" {
		h.writeError(c, fmt.Errorf("%w: tenantId is required", models.ErrInvalidInput))
		return
	}

	tenant, err := h.repo.GetTenant(c.Request.Context(), req.TenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	token, err := auth.GenerateJWT(tenant.TenantID, tenant.TenantID, tenant.Username, tenant.Role, h.cfg.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, warden.BindResponse{
		Token:     token,
		Tenant:    tenant,
		ExpiresIn: int(auth.DefaultTokenTTL.Seconds()),
	})
}

// ListUsers lists every tenant. Admin only.
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.repo.ListTenants(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, warden.UserListResponse{Users: users})
}

// DeleteUser removes a tenant and all its data. Admin accounts cannot be
// deleted through the API.
func (h *Handlers) DeleteUser(c *gin.Context) {
	tenantID := c.Param("tenantId")
	tenant, err := h.repo.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if tenant.Role == models.RoleAdmin {
		h.writeError(c, fmt.Errorf("%w: admin accounts cannot be deleted", models.ErrConflict))
		return
	}

	h.supervisor.StopMonitoring(tenantID)
	h.supervisor.StopChat(tenantID)
	if err := h.repo.DeleteTenant(c.Request.Context(), tenantID); err != nil {
		h.writeError(c, err)
		return
	}
	h.dispatcher.InvalidateTenant(tenantID)
	respondOK(c, "tenant deleted")
}

// newTenant builds a first-bind tenant record with the starter feature set.
func newTenant(tenantID string, req warden.BindRequest) models.Tenant {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	display := req.DisplayName
	if display == "" {
		display = req.Username
	}
	now := time.Now().UTC()
	return models.Tenant{
		TenantID:     tenantID,
		Username:     username,
		DisplayName:  display,
		Role:         models.RoleStreamer,
		StreamStatus: models.StatusOffline,
		Features: models.FeatureSet{
			ChatCommands:    true,
			StreamOverlay:   true,
			AlertAnimations: true,
		},
		Notifications: models.NotificationSettings{
			StreamOnline: true,
			Milestones:   true,
			Raids:        true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
