// Package lifecycle drives the per-tenant stream state machine. Transitions
// are only ever tenant-driven (dashboard or a managing moderator); upstream
// stream-online/offline notifications never move the machine, so monitoring
// keeps running after the upstream reports offline.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// Streams is the slice of the dispatcher the controller needs: counter stream
// markers plus the room broadcast path.
type Streams interface {
	StartStream(ctx context.Context, tenantID string) (models.Counters, error)
	EndStream(ctx context.Context, tenantID string) (models.Counters, error)
	Broadcast(ctx context.Context, tenantID string, msg models.RoomMessage)
}

// Sessions controls the per-tenant upstream and chat sessions. Implemented by
// the supervisor.
type Sessions interface {
	StartMonitoring(ctx context.Context, tenantID string) error
	StopMonitoring(tenantID string)
	ForceReconnect(ctx context.Context, tenantID string) error
	StartChat(ctx context.Context, tenantID string) error
	StopChat(tenantID string)
}

// Controller serializes state transitions per tenant.
type Controller struct {
	repo     *store.Repository
	streams  Streams
	sessions Sessions
	logger   logging.Logger
}

// NewController builds the lifecycle controller.
func NewController(repo *store.Repository, streams Streams, sessions Sessions, logger logging.Logger) *Controller {
	return &Controller{repo: repo, streams: streams, sessions: sessions, logger: logger}
}

// Prep moves offline→prepping: chat bot up (when the tenant has chat
// commands) and the upstream session force-reconnected so a stale socket
// never carries into the stream.
func (c *Controller) Prep(ctx context.Context, tenantID string) (models.Tenant, error) {
	tenant, err := c.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return models.Tenant{}, err
	}
	if tenant.StreamStatus != models.StatusOffline {
		return models.Tenant{}, transitionErr(tenant.StreamStatus, models.StatusPrepping)
	}

	if tenant.Features.ChatCommands {
		if err := c.sessions.StartChat(ctx, tenantID); err != nil {
			c.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Chat bot failed to start during prep")
		}
	}
	if err := c.sessions.ForceReconnect(ctx, tenantID); err != nil {
		c.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Upstream reconnect failed during prep")
	}

	return c.setStatus(ctx, tenant, models.StatusPrepping, "")
}

// GoLive moves prepping→live and stamps the counter stream markers.
func (c *Controller) GoLive(ctx context.Context, tenantID string) (models.Tenant, error) {
	tenant, err := c.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return models.Tenant{}, err
	}
	if tenant.StreamStatus != models.StatusPrepping {
		return models.Tenant{}, transitionErr(tenant.StreamStatus, models.StatusLive)
	}

	if _, err := c.streams.StartStream(ctx, tenantID); err != nil {
		return models.Tenant{}, fmt.Errorf("start stream markers: %w", err)
	}
	return c.setStatus(ctx, tenant, models.StatusLive, models.MsgStreamStarted)
}

// EndStream moves live or prepping back to offline, passing through the
// transient ending status while sessions shut down. The counter end marker is
// only written when the stream actually went live.
func (c *Controller) EndStream(ctx context.Context, tenantID string) (models.Tenant, error) {
	tenant, err := c.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return models.Tenant{}, err
	}
	wasLive := tenant.StreamStatus == models.StatusLive
	if !wasLive && tenant.StreamStatus != models.StatusPrepping {
		return models.Tenant{}, transitionErr(tenant.StreamStatus, models.StatusOffline)
	}

	if tenant, err = c.setStatus(ctx, tenant, models.StatusEnding, ""); err != nil {
		return models.Tenant{}, err
	}

	if wasLive {
		if _, err := c.streams.EndStream(ctx, tenantID); err != nil {
			c.logger.WithError(err).WithField("tenant_id", tenantID).Error("Failed to clear stream markers")
		}
	}
	c.sessions.StopChat(tenantID)
	c.sessions.StopMonitoring(tenantID)

	return c.setStatus(ctx, tenant, models.StatusOffline, models.MsgStreamEnded)
}

// CancelPrep moves prepping→offline without touching counters.
func (c *Controller) CancelPrep(ctx context.Context, tenantID string) (models.Tenant, error) {
	tenant, err := c.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return models.Tenant{}, err
	}
	if tenant.StreamStatus != models.StatusPrepping {
		return models.Tenant{}, transitionErr(tenant.StreamStatus, models.StatusOffline)
	}

	c.sessions.StopChat(tenantID)
	c.sessions.StopMonitoring(tenantID)
	return c.setStatus(ctx, tenant, models.StatusOffline, "")
}

// Status returns the tenant's current stream status.
func (c *Controller) Status(ctx context.Context, tenantID string) (string, error) {
	tenant, err := c.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return tenant.StreamStatus, nil
}

// setStatus persists the new status and broadcasts streamStatusChanged, plus
// a legacy alias message for old overlay clients when legacyType is set.
func (c *Controller) setStatus(ctx context.Context, tenant models.Tenant, status, legacyType string) (models.Tenant, error) {
	prev := tenant.StreamStatus
	tenant.StreamStatus = status
	if err := c.repo.PutTenant(ctx, tenant); err != nil {
		return models.Tenant{}, err
	}

	c.logger.WithFields(logging.Fields{
		"tenant_id": tenant.TenantID,
		"from":      prev,
		"to":        status,
	}).Info("Stream status changed")

	data := models.StreamStatusData{TenantID: tenant.TenantID, Status: status}
	c.streams.Broadcast(ctx, tenant.TenantID, models.NewRoomMessage(models.MsgStreamStatusChanged, data))
	if legacyType != "" {
		c.streams.Broadcast(ctx, tenant.TenantID, models.NewRoomMessage(legacyType, data))
	}
	return tenant, nil
}

func transitionErr(from, to string) error {
	return fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, from, to)
}
