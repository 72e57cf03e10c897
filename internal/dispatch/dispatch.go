// Package dispatch is the single consumer of the normalized event stream. It
// resolves per-tenant alert configuration, drives counter mutations, and fans
// results out to the room hub, chat echo, external webhook, the redis relay
// and the analytics firehose. One goroutine consumes the queue, so per-tenant
// event order is preserved end to end.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KainCH/omniasylum-sub001/internal/counters"
	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/pkg/cache"
	"github.com/KainCH/omniasylum-sub001/pkg/kafka"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// queueSize bounds the inbound event queue shared by all sessions.
const queueSize = 256

// Broadcaster delivers room messages to local subscribers. Implemented by the
// room hub.
type Broadcaster interface {
	BroadcastToTenant(tenantID string, msg models.RoomMessage)
}

// ChatSender routes an outbound chat line to a tenant's bot session.
// Implemented by the session supervisor.
type ChatSender interface {
	Send(ctx context.Context, tenantID, text string) error
}

// Relay publishes room messages for other instances. Implemented over redis
// pub/sub; nil disables the relay.
type Relay interface {
	PublishRoomMessage(ctx context.Context, tenantID string, msg models.RoomMessage) error
}

// Dispatcher consumes normalized events and owns all sink decisions.
type Dispatcher struct {
	engine   *counters.Engine
	repo     *store.Repository
	hub      Broadcaster
	chat     ChatSender
	relay    Relay
	firehose kafka.ProducerInterface
	webhook  *WebhookSender
	logger   logging.Logger

	queue chan models.UpstreamEvent

	// tenantCache keeps hot tenant records out of the store on the event
	// path.
	tenantCache *cache.Cache

	// notified tracks milestone thresholds already announced this stream,
	// keyed tenant -> "kind:threshold". Cleared on stream start and reset.
	mu       sync.Mutex
	notified map[string]map[string]bool
}

// Config wires the optional sinks.
type Config struct {
	Hub      Broadcaster
	Chat     ChatSender
	Relay    Relay
	Firehose kafka.ProducerInterface
	Webhook  *WebhookSender
}

// New builds a dispatcher. Hub is required; the other sinks may be nil.
func New(engine *counters.Engine, repo *store.Repository, cfg Config, logger logging.Logger) *Dispatcher {
	webhook := cfg.Webhook
	if webhook == nil {
		webhook = NewWebhookSender(0, logger)
	}
	return &Dispatcher{
		engine:   engine,
		repo:     repo,
		hub:      cfg.Hub,
		chat:     cfg.Chat,
		relay:    cfg.Relay,
		firehose: cfg.Firehose,
		webhook:  webhook,
		logger:   logger,
		queue:    make(chan models.UpstreamEvent, queueSize),
		tenantCache: cache.New(cache.Options{
			TTL:                  5 * time.Second,
			StaleWhileRevalidate: 30 * time.Second,
			NegativeTTL:          2 * time.Second,
			MaxEntries:           4096,
		}, cache.MetricsHooks{}),
		notified: make(map[string]map[string]bool),
	}
}

// Enqueue hands an event to the dispatcher without blocking. Returns false
// when the queue is saturated.
func (d *Dispatcher) Enqueue(ev models.UpstreamEvent) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		return false
	}
}

// Run consumes the queue until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.handleEvent(ctx, ev)
		}
	}
}

// SetHub wires the room hub in after construction; the hub itself is built
// with the dispatcher as its mutator. Must be called before Run.
func (d *Dispatcher) SetHub(hub Broadcaster) {
	d.hub = hub
}

// InvalidateTenant drops a tenant's cached config after an HTTP mutation.
func (d *Dispatcher) InvalidateTenant(tenantID string) {
	d.tenantCache.Delete("tenant:" + tenantID)
}

func (d *Dispatcher) tenant(ctx context.Context, tenantID string) (models.Tenant, error) {
	v, ok, err := d.tenantCache.Get(ctx, "tenant:"+tenantID, func(ctx context.Context, _ string) (interface{}, bool, error) {
		t, err := d.repo.GetTenant(ctx, tenantID)
		if err != nil {
			return nil, false, err
		}
		return t, true, nil
	})
	if err != nil {
		return models.Tenant{}, err
	}
	if !ok {
		return models.Tenant{}, fmt.Errorf("%w: tenant %s", models.ErrNotFound, tenantID)
	}
	return v.(models.Tenant), nil
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev models.UpstreamEvent) {
	tenant, err := d.tenant(ctx, ev.TenantID)
	if err != nil {
		d.logger.WithError(err).WithField("tenant_id", ev.TenantID).Warn("Dropping event for unknown tenant")
		return
	}

	d.publishFirehose(tenant, ev)

	switch ev.Kind {
	case models.EventStreamOnline:
		d.handleStreamOnline(ctx, tenant, ev)
	case models.EventStreamOffline:
		d.handleStreamOffline(ctx, tenant, ev)
	case models.EventCheer:
		d.handleCheer(ctx, tenant, ev)
	case models.EventRewardRedeemed:
		d.handleRewardRedeemed(ctx, tenant, ev)
	case models.EventChatCommand:
		d.handleChatCommand(ctx, tenant, ev)
	case models.EventFollow, models.EventSubscribe, models.EventSubscribeGift,
		models.EventSubscribeMessage, models.EventRaid:
		d.handleSocialEvent(ctx, tenant, ev)
	default:
		d.logger.WithFields(logging.Fields{
			"tenant_id": ev.TenantID,
			"kind":      ev.Kind,
		}).Debug("Ignoring event kind with no dispatch rule")
	}
}

// eventMessageType maps an event kind to its legacy room message name.
var eventMessageType = map[models.EventKind]string{
	models.EventFollow:           models.MsgNewFollower,
	models.EventSubscribe:        models.MsgNewSubscription,
	models.EventSubscribeGift:    models.MsgNewGiftSub,
	models.EventSubscribeMessage: models.MsgNewResub,
	models.EventCheer:            models.MsgNewCheer,
	models.EventRaid:             models.MsgRaidReceived,
	models.EventRewardRedeemed:   models.MsgRewardRedeemed,
}

// handleSocialEvent covers follows, subs and raids: event record into the
// room, optional overlay alert, raid chat acknowledgement.
func (d *Dispatcher) handleSocialEvent(ctx context.Context, tenant models.Tenant, ev models.UpstreamEvent) {
	if msgType, ok := eventMessageType[ev.Kind]; ok {
		d.broadcast(ctx, tenant.TenantID, models.NewRoomMessage(msgType, ev.Payload))
	}
	d.emitCustomAlert(ctx, tenant, ev)

	if ev.Kind == models.EventRaid && tenant.Notifications.Raids {
		d.chatEcho(ctx, tenant.TenantID, fmt.Sprintf("⚔️ %s is raiding with %d viewers! Welcome raiders!",
			displayName(ev.Payload), ev.Payload.Viewers))
		d.sendWebhook(ctx, tenant, raidEmbed(ev.Payload))
	}
}

func (d *Dispatcher) handleCheer(ctx context.Context, tenant models.Tenant, ev models.UpstreamEvent) {
	if ev.Payload.Bits > 0 {
		c, change, err := d.engine.AddBits(ctx, tenant.TenantID, int64(ev.Payload.Bits))
		if err != nil {
			d.logger.WithError(err).WithField("tenant_id", tenant.TenantID).Error("Cheer bits update failed")
		} else {
			d.emitCounterUpdate(ctx, tenant.TenantID, c, change, "cheer")
		}
	}
	d.broadcast(ctx, tenant.TenantID, models.NewRoomMessage(models.MsgNewCheer, ev.Payload))
	d.broadcast(ctx, tenant.TenantID, models.NewRoomMessage(models.MsgBitsReceived, ev.Payload))
	d.emitCustomAlert(ctx, tenant, ev)
}

// handleRewardRedeemed drives counters from channel-point redemptions. The
// reward -> counter wiring is independent of the alert mapping.
func (d *Dispatcher) handleRewardRedeemed(ctx context.Context, tenant models.Tenant, ev models.UpstreamEvent) {
	d.broadcast(ctx, tenant.TenantID, models.NewRoomMessage(models.MsgRewardRedeemed, ev.Payload))

	if tenant.Features.ChannelPoints {
		if kind, ok := tenant.RewardCounterMap[ev.Payload.RewardID]; ok {
			c, change, milestones, err := d.engine.Increment(ctx, tenant.TenantID, kind)
			if err != nil {
				d.logger.WithError(err).WithField("tenant_id", tenant.TenantID).Error("Reward counter update failed")
			} else {
				d.emitMilestones(ctx, tenant, kind, c, milestones)
				d.emitCounterUpdate(ctx, tenant.TenantID, c, change, "channel-points")
			}
		}
	}
	d.emitCustomAlert(ctx, tenant, ev)
}

func (d *Dispatcher) handleStreamOnline(ctx context.Context, tenant models.Tenant, ev models.UpstreamEvent) {
	streamID := ev.Payload.StreamID
	last, err := d.engine.LastNotifiedStreamID(ctx, tenant.TenantID)
	if err != nil {
		d.logger.WithError(err).WithField("tenant_id", tenant.TenantID).Error("Stream-online suppression check failed")
		return
	}
	if last != nil && *last == streamID {
		// Reconnect or replay of a stream we already announced.
		d.logger.WithFields(logging.Fields{
			"tenant_id": tenant.TenantID,
			"stream_id": streamID,
		}).Debug("Suppressing duplicate stream-online notification")
		return
	}

	d.broadcast(ctx, tenant.TenantID, models.NewRoomMessage(models.MsgStreamOnline, ev.Payload))
	if tenant.Notifications.StreamOnline {
		d.chatEcho(ctx, tenant.TenantID, "🔴 Stream is live! Counters are ready.")
		d.sendWebhook(ctx, tenant, streamOnlineEmbed(tenant, ev.Payload))
	}

	if err := d.engine.SetLastNotifiedStreamID(ctx, tenant.TenantID, &streamID); err != nil {
		d.logger.WithError(err).WithField("tenant_id", tenant.TenantID).Error("Failed to record notified stream id")
	}
}

func (d *Dispatcher) handleStreamOffline(ctx context.Context, tenant models.Tenant, ev models.UpstreamEvent) {
	if err := d.engine.SetLastNotifiedStreamID(ctx, tenant.TenantID, nil); err != nil {
		d.logger.WithError(err).WithField("tenant_id", tenant.TenantID).Error("Failed to clear notified stream id")
	}
	d.broadcast(ctx, tenant.TenantID, models.NewRoomMessage(models.MsgStreamOffline, ev.Payload))
}

// emitCustomAlert resolves mapping and definition; "none" mappings and
// disabled alerts produce nothing.
func (d *Dispatcher) emitCustomAlert(ctx context.Context, tenant models.Tenant, ev models.UpstreamEvent) {
	if !tenant.Features.AlertAnimations && !tenant.Features.StreamOverlay {
		return
	}
	mapping, err := d.repo.GetEventMapping(ctx, tenant.TenantID)
	if err != nil {
		d.logger.WithError(err).WithField("tenant_id", tenant.TenantID).Warn("Event mapping lookup failed")
		return
	}
	alertID := mapping.AlertFor(ev.Kind)
	if alertID == "" {
		return
	}
	alert, err := d.repo.GetAlert(ctx, tenant.TenantID, alertID)
	if err != nil {
		d.logger.WithError(err).WithFields(logging.Fields{
			"tenant_id": tenant.TenantID,
			"alert_id":  alertID,
		}).Warn("Alert definition lookup failed")
		return
	}
	if !alert.Enabled {
		return
	}
	// Template placeholders stay unrendered; overlays substitute client-side.
	d.broadcast(ctx, tenant.TenantID, models.NewRoomMessage(models.MsgCustomAlert, models.CustomAlertData{
		Alert: alert,
		Event: ev.Payload,
		Kind:  ev.Kind,
	}))
}

// emitMilestones announces crossings before the counterUpdate of the same
// mutation, at most once per threshold per stream.
func (d *Dispatcher) emitMilestones(ctx context.Context, tenant models.Tenant, kind models.CounterKind, c models.Counters, milestones []models.Milestone) {
	for _, m := range milestones {
		if !d.markNotified(tenant.TenantID, m) {
			continue
		}
		d.broadcast(ctx, tenant.TenantID, models.NewRoomMessage(models.MsgMilestoneReached, models.MilestoneReachedData{
			Kind:              m.Kind,
			Threshold:         m.Threshold,
			PreviousMilestone: m.PreviousMilestone,
			Current:           c.Value(kind),
		}))
		if tenant.Notifications.Milestones {
			d.chatEcho(ctx, tenant.TenantID, fmt.Sprintf("🎉 Milestone reached: %d %s!", m.Threshold, m.Kind))
			d.sendWebhook(ctx, tenant, milestoneEmbed(tenant, m))
		}
	}
}

func (d *Dispatcher) markNotified(tenantID string, m models.Milestone) bool {
	key := fmt.Sprintf("%s:%d", m.Kind, m.Threshold)
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := d.notified[tenantID]
	if seen == nil {
		seen = make(map[string]bool)
		d.notified[tenantID] = seen
	}
	if seen[key] {
		return false
	}
	seen[key] = true
	return true
}

func (d *Dispatcher) clearNotified(tenantID string) {
	d.mu.Lock()
	delete(d.notified, tenantID)
	d.mu.Unlock()
}

func (d *Dispatcher) emitCounterUpdate(ctx context.Context, tenantID string, c models.Counters, change models.CounterChange, source string) {
	d.broadcast(ctx, tenantID, models.NewRoomMessage(models.MsgCounterUpdate, models.CounterUpdateData{
		Counters: c,
		Change:   change,
		Source:   source,
	}))
}

// broadcast fans a message out locally and over the relay when configured.
func (d *Dispatcher) broadcast(ctx context.Context, tenantID string, msg models.RoomMessage) {
	if d.hub != nil {
		d.hub.BroadcastToTenant(tenantID, msg)
	}
	if d.relay != nil {
		if err := d.relay.PublishRoomMessage(ctx, tenantID, msg); err != nil {
			d.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Relay publish failed")
		}
	}
}

func (d *Dispatcher) chatEcho(ctx context.Context, tenantID, text string) {
	if d.chat == nil {
		return
	}
	if err := d.chat.Send(ctx, tenantID, text); err != nil {
		d.logger.WithError(err).WithField("tenant_id", tenantID).Debug("Chat echo failed")
	}
}

func (d *Dispatcher) publishFirehose(tenant models.Tenant, ev models.UpstreamEvent) {
	if d.firehose == nil || !tenant.Features.Analytics {
		return
	}
	if ev.Kind == models.EventChatCommand {
		return
	}
	if err := d.firehose.PublishOverlayEvent(kafka.NewOverlayEvent(ev)); err != nil {
		d.logger.WithError(err).WithField("tenant_id", tenant.TenantID).Warn("Firehose publish failed")
	}
}

func displayName(p models.EventPayload) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.UserName
}
