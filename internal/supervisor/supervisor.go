// Package supervisor owns the per-tenant upstream and chat sessions: starting
// and stopping them on demand, reporting their status, and tearing everything
// down when a tenant's authorization is revoked.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/KainCH/omniasylum-sub001/internal/chat"
	"github.com/KainCH/omniasylum-sub001/internal/eventsub"
	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/internal/tokens"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// Broadcaster pushes session status changes into the tenant's room.
type Broadcaster interface {
	BroadcastToTenant(tenantID string, msg models.RoomMessage)
}

// EventSink receives normalized events from both session kinds.
type EventSink interface {
	Enqueue(ev models.UpstreamEvent) bool
}

// Config carries the session tuning shared by all tenants.
type Config struct {
	EventSub eventsub.Config
	Chat     chat.Config
}

// Supervisor tracks one upstream session and one chat session per tenant.
type Supervisor struct {
	repo   *store.Repository
	broker *tokens.Broker
	sink   EventSink
	hub    Broadcaster
	cfg    Config
	logger logging.Logger

	mu       sync.Mutex
	monitors map[string]*eventsub.Session
	bots     map[string]*chat.Session
}

// New builds a supervisor. The hub may be set later via SetBroadcaster to
// break the construction cycle with the room hub.
func New(repo *store.Repository, broker *tokens.Broker, sink EventSink, cfg Config, logger logging.Logger) *Supervisor {
	return &Supervisor{
		repo:     repo,
		broker:   broker,
		sink:     sink,
		cfg:      cfg,
		logger:   logger,
		monitors: make(map[string]*eventsub.Session),
		bots:     make(map[string]*chat.Session),
	}
}

// SetBroadcaster wires the room hub in after construction.
func (s *Supervisor) SetBroadcaster(hub Broadcaster) {
	s.mu.Lock()
	s.hub = hub
	s.mu.Unlock()
}

// SetSink wires the event sink in after construction; sessions are created
// lazily so this only needs to happen before the first start.
func (s *Supervisor) SetSink(sink EventSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// StartMonitoring brings the tenant's upstream session up. Idempotent: an
// already running session is left alone.
func (s *Supervisor) StartMonitoring(ctx context.Context, tenantID string) error {
	tenant, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	creds, err := s.repo.GetCredentials(ctx, tenantID)
	if err != nil {
		return err
	}
	if creds.Revoked {
		return models.ErrAuthRevoked
	}

	s.mu.Lock()
	if _, running := s.monitors[tenantID]; running {
		s.mu.Unlock()
		return nil
	}
	session := eventsub.NewSession(tenantID, s.cfg.EventSub, s.broker, s.sink, s.onAuthRevoked, s.logger)
	s.monitors[tenantID] = session
	s.mu.Unlock()

	session.Start()
	s.logger.WithFields(logging.Fields{
		"tenant_id": tenantID,
		"username":  tenant.Username,
	}).Info("Started upstream monitoring")
	s.broadcastMonitorStatus(tenantID, true, "")
	return nil
}

// StopMonitoring tears the tenant's upstream session down if one is running.
func (s *Supervisor) StopMonitoring(tenantID string) {
	s.mu.Lock()
	session := s.monitors[tenantID]
	delete(s.monitors, tenantID)
	s.mu.Unlock()

	if session == nil {
		return
	}
	session.Close()
	s.logger.WithField("tenant_id", tenantID).Info("Stopped upstream monitoring")
	s.broadcastMonitorStatus(tenantID, false, "")
}

// ForceReconnect cycles the upstream session so a fresh socket and fresh
// subscriptions carry into the stream. Starts one if none is running.
func (s *Supervisor) ForceReconnect(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	session := s.monitors[tenantID]
	delete(s.monitors, tenantID)
	s.mu.Unlock()
	if session != nil {
		session.Close()
	}
	return s.StartMonitoring(ctx, tenantID)
}

// IsMonitoring reports whether an upstream session exists for the tenant.
func (s *Supervisor) IsMonitoring(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.monitors[tenantID]
	return ok
}

// MonitorStatus reports the upstream session state.
func (s *Supervisor) MonitorStatus(tenantID string) models.MonitorStatus {
	s.mu.Lock()
	session := s.monitors[tenantID]
	s.mu.Unlock()
	if session == nil {
		return models.MonitorStatus{Subscriptions: []models.EventSubSubscription{}}
	}
	return session.Status()
}

// StartChat brings the tenant's chat bot up. Idempotent.
func (s *Supervisor) StartChat(ctx context.Context, tenantID string) error {
	tenant, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if !tenant.Features.ChatCommands {
		return fmt.Errorf("%w: chat commands", models.ErrFeatureDisabled)
	}
	creds, err := s.repo.GetCredentials(ctx, tenantID)
	if err != nil {
		return err
	}
	if creds.Revoked {
		return models.ErrAuthRevoked
	}

	s.mu.Lock()
	if _, running := s.bots[tenantID]; running {
		s.mu.Unlock()
		return nil
	}
	session := chat.NewSession(tenantID, tenant.Username, s.cfg.Chat, s.broker, s.sink, s.onAuthRevoked, s.logger)
	s.bots[tenantID] = session
	s.mu.Unlock()

	session.Start()
	s.logger.WithFields(logging.Fields{
		"tenant_id": tenantID,
		"channel":   tenant.Username,
	}).Info("Started chat bot")
	s.broadcastBotStatus(tenantID, true, "")
	return nil
}

// StopChat tears the tenant's chat bot down if one is running.
func (s *Supervisor) StopChat(tenantID string) {
	s.mu.Lock()
	session := s.bots[tenantID]
	delete(s.bots, tenantID)
	s.mu.Unlock()

	if session == nil {
		return
	}
	session.Stop()
	s.logger.WithField("tenant_id", tenantID).Info("Stopped chat bot")
	s.broadcastBotStatus(tenantID, false, "")
}

// ChatStatus reports the chat session state.
func (s *Supervisor) ChatStatus(tenantID string) models.BotStatus {
	s.mu.Lock()
	session := s.bots[tenantID]
	s.mu.Unlock()
	if session == nil {
		return models.BotStatus{}
	}
	return session.Status()
}

// Send routes an outbound chat line to the tenant's bot. Satisfies the
// dispatcher's chat sink.
func (s *Supervisor) Send(ctx context.Context, tenantID, text string) error {
	s.mu.Lock()
	session := s.bots[tenantID]
	s.mu.Unlock()
	if session == nil {
		return fmt.Errorf("no chat session for tenant %s", tenantID)
	}
	return session.Send(ctx, text)
}

// StopAll tears every session down, used on shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	monitors := s.monitors
	bots := s.bots
	s.monitors = make(map[string]*eventsub.Session)
	s.bots = make(map[string]*chat.Session)
	s.mu.Unlock()

	for _, session := range monitors {
		session.Close()
	}
	for _, session := range bots {
		session.Stop()
	}
}

// Counts reports running session totals for metrics.
func (s *Supervisor) Counts() (monitors, bots int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.monitors), len(s.bots)
}

// onAuthRevoked runs when either session kind hits a permanent authorization
// failure: both sessions stop and the room is told to prompt a re-link.
// Teardown happens on a fresh goroutine because the callback fires from
// inside the failing session's own run loop, and Close waits for that loop.
func (s *Supervisor) onAuthRevoked(tenantID string) {
	s.logger.WithField("tenant_id", tenantID).Warn("Authorization revoked, stopping sessions")
	go func() {
		s.StopMonitoring(tenantID)
		s.StopChat(tenantID)
		if hub := s.broadcaster(); hub != nil {
			hub.BroadcastToTenant(tenantID, models.NewRoomMessage(models.MsgAuthRevoked, models.SessionStatusData{
				TenantID: tenantID,
				Reason:   "authorization revoked",
			}))
		}
	}()
}

func (s *Supervisor) broadcaster() Broadcaster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub
}

func (s *Supervisor) broadcastMonitorStatus(tenantID string, connected bool, reason string) {
	if hub := s.broadcaster(); hub != nil {
		hub.BroadcastToTenant(tenantID, models.NewRoomMessage(models.MsgEventSubStatusChanged, models.SessionStatusData{
			TenantID:  tenantID,
			Connected: connected,
			Reason:    reason,
		}))
	}
}

func (s *Supervisor) broadcastBotStatus(tenantID string, connected bool, reason string) {
	if hub := s.broadcaster(); hub != nil {
		hub.BroadcastToTenant(tenantID, models.NewRoomMessage(models.MsgBotStatusChanged, models.SessionStatusData{
			TenantID:  tenantID,
			Connected: connected,
			Reason:    reason,
		}))
	}
}
