// Package handlers is the HTTP surface of the broker. It binds and validates
// request documents, resolves the acting tenant, calls into the core and
// translates sentinel errors into status codes. No other layer writes HTTP
// responses.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KainCH/omniasylum-sub001/internal/dispatch"
	"github.com/KainCH/omniasylum-sub001/internal/lifecycle"
	"github.com/KainCH/omniasylum-sub001/internal/rooms"
	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/internal/supervisor"
	"github.com/KainCH/omniasylum-sub001/internal/tokens"
	"github.com/KainCH/omniasylum-sub001/pkg/api/common"
	"github.com/KainCH/omniasylum-sub001/pkg/auth"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// Config carries the secrets the HTTP layer needs.
type Config struct {
	JWTSecret    []byte
	ServiceToken string
}

// Handlers holds every dependency of the HTTP surface.
type Handlers struct {
	repo       *store.Repository
	dispatcher *dispatch.Dispatcher
	lifecycle  *lifecycle.Controller
	supervisor *supervisor.Supervisor
	broker     *tokens.Broker
	hub        *rooms.Hub
	webhook    *dispatch.WebhookSender
	cfg        Config
	logger     logging.Logger
}

// New builds the handler set.
func New(repo *store.Repository, d *dispatch.Dispatcher, lc *lifecycle.Controller,
	sup *supervisor.Supervisor, broker *tokens.Broker, hub *rooms.Hub,
	webhook *dispatch.WebhookSender, cfg Config, logger logging.Logger) *Handlers {
	return &Handlers{
		repo:       repo,
		dispatcher: d,
		lifecycle:  lc,
		supervisor: sup,
		broker:     broker,
		hub:        hub,
		webhook:    webhook,
		cfg:        cfg,
		logger:     logger,
	}
}

// Register wires every route onto the router.
func (h *Handlers) Register(router *gin.Engine) {
	router.POST("/auth/twitch/bind", h.BindCredentials)
	router.POST("/auth/token", auth.ServiceAuthMiddleware(h.cfg.ServiceToken), h.IssueToken)

	api := router.Group("/api")
	api.Use(auth.JWTAuthMiddleware(h.cfg.JWTSecret, h.cfg.ServiceToken))
	{
		api.GET("/counters", h.GetCounters)
		api.POST("/counters/:kind/increment", h.IncrementCounter)
		api.POST("/counters/:kind/decrement", h.DecrementCounter)
		api.POST("/counters/reset", h.ResetCounters)
		api.GET("/counters/export", h.ExportCounters)

		api.POST("/counters/series/save", h.SaveSeries)
		api.POST("/counters/series/load", h.LoadSeries)
		api.GET("/counters/series/list", h.ListSeries)
		api.DELETE("/counters/series/:seriesId", h.DeleteSeries)

		api.POST("/stream/prep", h.PrepStream)
		api.POST("/stream/go-live", h.GoLive)
		api.POST("/stream/end-stream", h.EndStream)
		api.POST("/stream/cancel-prep", h.CancelPrep)
		api.GET("/stream/status", h.StreamStatus)

		api.POST("/stream/monitor/start", h.StartMonitor)
		api.POST("/stream/monitor/stop", h.StopMonitor)
		api.POST("/stream/monitor/reconnect", h.ReconnectMonitor)
		api.GET("/stream/monitor/status", h.MonitorStatus)

		api.POST("/stream/bot/toggle", h.ToggleBot)
		api.GET("/stream/bot/status", h.BotStatus)

		api.GET("/alerts", h.ListAlerts)
		api.POST("/alerts", h.CreateAlert)
		api.PUT("/alerts/event-mappings", h.PutEventMappings)
		api.GET("/alerts/event-mappings", h.GetEventMappings)
		api.PUT("/alerts/:alertId", h.UpdateAlert)
		api.DELETE("/alerts/:alertId", h.DeleteAlert)

		api.GET("/user/overlay-settings", h.GetOverlaySettings)
		api.PUT("/user/overlay-settings", h.PutOverlaySettings)
		api.PUT("/user/webhook", h.PutWebhook)
		api.POST("/user/webhook/test", h.TestWebhook)

		admin := api.Group("/admin", auth.RequireRole(models.RoleAdmin))
		{
			admin.GET("/users", h.ListUsers)
			admin.DELETE("/users/:tenantId", h.DeleteUser)
		}
	}

	router.GET("/ws", gin.WrapF(h.hub.ServeWS))
}

// actingTenant resolves the tenant a request acts on: the authenticated
// tenant, or a managed tenant named by ?tenantId=.
func (h *Handlers) actingTenant(c *gin.Context) (string, bool) {
	own := auth.TenantID(c)
	target := c.Query("tenantId")
	if target == "" || target == own {
		if own == "" {
			h.writeError(c, models.ErrUnauthorized)
			return "", false
		}
		return own, true
	}

	tenant, err := h.repo.GetTenant(c.Request.Context(), own)
	if err != nil || !tenant.Manages(target) {
		c.JSON(http.StatusForbidden, common.ErrorResponse{Error: "not authorized for tenant"})
		return "", false
	}
	return target, true
}

// writeError is the single sentinel-to-status translation point. Illegal
// transitions and default-alert modifications are caller mistakes, so they
// land in the 400 bucket with the validation errors.
func (h *Handlers) writeError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrNoCredentials),
		errors.Is(err, models.ErrAuthRevoked),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrConflict):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrFeatureDisabled):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrRefreshFailed),
		errors.Is(err, models.ErrUpstreamUnavailable):
		// Transient upstream failures keep their details in the body.
		status = http.StatusInternalServerError
	default:
		h.logger.WithError(err).Error("Unhandled error in HTTP layer")
		c.JSON(http.StatusInternalServerError, common.ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(status, common.ErrorResponse{Error: err.Error()})
}

func respondOK(c *gin.Context, message string) {
	c.JSON(http.StatusOK, common.SuccessResponse{Success: true, Message: message})
}
