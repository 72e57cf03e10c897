// Package rooms fans dispatcher output to websocket subscribers, one room per
// tenant. Authenticated subscribers are auto-joined to their own room and may
// mutate; anyone can join additional rooms read-only, which is how overlay
// browser sources attach without credentials.
package rooms

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/pkg/auth"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
	"github.com/KainCH/omniasylum-sub001/pkg/tenants"
)

// Mutator executes counter mutations on behalf of authorized subscribers.
// Implemented by the dispatcher so room mutations share the milestone and
// fan-out path with every other source.
type Mutator interface {
	Increment(ctx context.Context, tenantID string, kind models.CounterKind, source string) (models.Counters, error)
	Decrement(ctx context.Context, tenantID string, kind models.CounterKind, source string) (models.Counters, error)
	Reset(ctx context.Context, tenantID, source string) (models.Counters, error)
	Counters(ctx context.Context, tenantID string) (models.Counters, error)
}

// MonitorControl is the slice of the supervisor the hub needs: the stale-live
// cross-check and the connectTwitch command.
type MonitorControl interface {
	IsMonitoring(tenantID string) bool
	StartMonitoring(ctx context.Context, tenantID string) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type roomMessage struct {
	room    string
	payload []byte
}

// Hub maintains the per-tenant rooms and the subscriber set.
type Hub struct {
	repo      *store.Repository
	mutator   Mutator
	monitor   MonitorControl
	jwtSecret []byte
	logger    logging.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage

	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
}

// NewHub builds the hub. Run must be started before serving connections.
func NewHub(repo *store.Repository, mutator Mutator, monitor MonitorControl, jwtSecret []byte, logger logging.Logger) *Hub {
	return &Hub{
		repo:       repo,
		mutator:    mutator,
		monitor:    monitor,
		jwtSecret:  jwtSecret,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 256),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// Run owns room membership until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			for room := range client.rooms {
				h.addToRoom(room, client)
			}
			h.mu.Unlock()
			h.logger.WithFields(logging.Fields{
				"tenant_id": client.tenantID,
				"rooms":     len(client.rooms),
			}).Info("Subscriber connected")

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// BroadcastToTenant queues a message for every subscriber in the tenant's
// room. Best-effort: a full hub queue drops the message.
func (h *Hub) BroadcastToTenant(tenantID string, msg models.RoomMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal room message")
		return
	}
	select {
	case h.broadcast <- roomMessage{room: tenants.RoomKey(tenantID), payload: payload}:
	default:
		h.logger.WithField("tenant_id", tenantID).Warn("Broadcast queue full, dropping message")
	}
}

// SendSnapshot pushes a fresh room snapshot to every subscriber in the
// tenant's room, used after server-side settings changes.
func (h *Hub) SendSnapshot(ctx context.Context, tenantID string) {
	snap, err := h.snapshotFor(ctx, tenantID)
	if err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Snapshot broadcast failed")
		return
	}
	h.BroadcastToTenant(tenantID, models.NewRoomMessage(models.MsgRoomJoined, snap))
}

// RoomCounts reports subscriber counts per room for metrics.
func (h *Hub) RoomCounts() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.rooms))
	for room, members := range h.rooms {
		out[room] = len(members)
	}
	return out
}

func (h *Hub) fanOut(msg roomMessage) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[msg.room]))
	for c := range h.rooms[msg.room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		select {
		case c.send <- msg.payload:
		default:
			// Slow subscriber: drop it rather than block the fan-out.
			h.removeClient(c)
		}
	}
}

// joinRoom adds a client to a room; repeated joins are no-ops.
func (h *Hub) joinRoom(room string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room][c] {
		return false
	}
	c.rooms[room] = true
	h.addToRoom(room, c)
	return true
}

// addToRoom requires h.mu held.
func (h *Hub) addToRoom(room string, c *Client) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	removed := false
	for room := range c.rooms {
		if h.rooms[room][c] {
			delete(h.rooms[room], c)
			if len(h.rooms[room]) == 0 {
				delete(h.rooms, room)
			}
			removed = true
		}
	}
	h.mu.Unlock()
	if removed {
		c.closeSend()
		h.logger.WithField("tenant_id", c.tenantID).Info("Subscriber disconnected")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[*Client]bool)
	for _, members := range h.rooms {
		for c := range members {
			if !seen[c] {
				seen[c] = true
				c.closeSend()
			}
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
}

// ServeWS upgrades a subscriber connection. A valid bearer token (query
// `token` or Authorization header) authenticates the subscriber and
// auto-joins its own room; anonymous connections start with no rooms.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]bool),
		logger: h.logger,
	}

	if token := bearerToken(r); token != "" {
		if claims, err := auth.ValidateJWT(token, h.jwtSecret); err == nil {
			client.tenantID = claims.TenantID
			client.role = claims.Role
			client.managed = h.managedTenants(r.Context(), claims.TenantID)
			client.rooms[tenants.RoomKey(claims.TenantID)] = true
		} else {
			h.logger.WithError(err).Debug("Ignoring invalid subscriber token")
		}
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	// The auto-joined room gets its snapshot like any explicit join.
	if client.tenantID != "" {
		client.sendSnapshot(r.Context(), client.tenantID)
	}
}

func (h *Hub) managedTenants(ctx context.Context, tenantID string) []string {
	t, err := h.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil
	}
	return t.ManagedTenants
}

func bearerToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	const prefix = "Bearer "
	if ah := r.Header.Get("Authorization"); len(ah) > len(prefix) && ah[:len(prefix)] == prefix {
		return ah[len(prefix):]
	}
	return ""
}

// snapshotFor builds the join snapshot, downgrading a stale "live" status
// when no upstream session is actually running.
func (h *Hub) snapshotFor(ctx context.Context, tenantID string) (models.RoomSnapshotData, error) {
	tenant, err := h.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return models.RoomSnapshotData{}, err
	}

	if tenant.StreamStatus == models.StatusLive && h.monitor != nil && !h.monitor.IsMonitoring(tenantID) {
		tenant.StreamStatus = models.StatusOffline
		if err := h.repo.PutTenant(ctx, tenant); err != nil {
			h.logger.WithError(err).WithField("tenant_id", tenantID).Error("Failed to persist stale-live downgrade")
		} else {
			h.logger.WithField("tenant_id", tenantID).Warn("Downgraded stale live status")
			h.BroadcastToTenant(tenantID, models.NewRoomMessage(models.MsgStreamStatusChanged, models.StreamStatusData{
				TenantID: tenantID,
				Status:   models.StatusOffline,
			}))
		}
	}

	c, err := h.mutator.Counters(ctx, tenantID)
	if err != nil {
		return models.RoomSnapshotData{}, err
	}
	return models.RoomSnapshotData{
		TenantID:     tenantID,
		Counters:     c,
		StreamStatus: tenant.StreamStatus,
		Features:     tenant.Features,
	}, nil
}
