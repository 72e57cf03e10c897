package rooms

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
	"github.com/KainCH/omniasylum-sub001/pkg/tenants"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one websocket subscriber. tenantID is empty for anonymous
// connections, which can join rooms and read but never mutate.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger logging.Logger

	tenantID  string
	role      string
	managed   []string
	closeOnce sync.Once

	// rooms this client belongs to; written by the client goroutine and the
	// hub under h.mu.
	rooms map[string]bool
}

// clientMessage is the inbound frame.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// targetPayload carries the tenant a message acts on. Missing tenantId means
// the subscriber's own tenant.
type targetPayload struct {
	TenantID string `json:"tenantId"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Debug("Subscriber read error")
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg clientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case models.MsgPing:
		c.sendMessage(models.NewRoomMessage(models.MsgPong, nil))

	case models.MsgJoinRoom:
		target := c.target(msg.Data)
		if !tenants.Valid(target) {
			c.sendError("invalid tenant")
			return
		}
		c.hub.joinRoom(tenants.RoomKey(target), c)
		c.sendSnapshot(ctx, target)

	case models.MsgGetStreamStatus:
		target := c.target(msg.Data)
		tenant, err := c.hub.repo.GetTenant(ctx, target)
		if err != nil {
			c.sendError("unknown tenant")
			return
		}
		c.sendMessage(models.NewRoomMessage(models.MsgStreamStatusChanged, models.StreamStatusData{
			TenantID: target,
			Status:   tenant.StreamStatus,
		}))

	case models.MsgStreamModeHeartbeat:
		target := c.target(msg.Data)
		active := c.hub.monitor != nil && c.hub.monitor.IsMonitoring(target)
		c.sendMessage(models.NewRoomMessage(models.MsgStreamModeStatus, models.StreamModeStatusData{
			TenantID:       target,
			EventSubActive: active,
		}))

	case models.MsgIncrementDeaths:
		c.mutate(ctx, msg.Data, models.KindDeaths, true)
	case models.MsgDecrementDeaths:
		c.mutate(ctx, msg.Data, models.KindDeaths, false)
	case models.MsgIncrementSwears:
		c.mutate(ctx, msg.Data, models.KindSwears, true)
	case models.MsgDecrementSwears:
		c.mutate(ctx, msg.Data, models.KindSwears, false)

	case models.MsgResetCounters:
		target := c.target(msg.Data)
		if !c.authorized(target) {
			c.sendError("not authorized")
			return
		}
		if _, err := c.hub.mutator.Reset(ctx, target, "websocket"); err != nil {
			c.sendError("reset failed")
		}

	case models.MsgConnectTwitch:
		target := c.target(msg.Data)
		if !c.authorized(target) {
			c.sendError("not authorized")
			return
		}
		if err := c.hub.monitor.StartMonitoring(ctx, target); err != nil {
			c.logger.WithError(err).WithField("tenant_id", target).Warn("connectTwitch failed")
			c.sendError("failed to start monitoring")
		}

	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *Client) mutate(ctx context.Context, data json.RawMessage, kind models.CounterKind, up bool) {
	target := c.target(data)
	if !c.authorized(target) {
		c.sendError("not authorized")
		return
	}
	var err error
	if up {
		_, err = c.hub.mutator.Increment(ctx, target, kind, "websocket")
	} else {
		_, err = c.hub.mutator.Decrement(ctx, target, kind, "websocket")
	}
	if err != nil {
		c.sendError("mutation failed")
	}
}

// target resolves which tenant a message acts on; defaults to the
// subscriber's own tenant.
func (c *Client) target(data json.RawMessage) string {
	var p targetPayload
	if len(data) > 0 {
		_ = json.Unmarshal(data, &p)
	}
	if p.TenantID != "" {
		return p.TenantID
	}
	return c.tenantID
}

// authorized reports whether this subscriber may mutate the target tenant.
func (c *Client) authorized(target string) bool {
	if c.tenantID == "" || target == "" {
		return false
	}
	if c.tenantID == target {
		return true
	}
	for _, id := range c.managed {
		if id == target {
			return true
		}
	}
	return false
}

func (c *Client) sendSnapshot(ctx context.Context, tenantID string) {
	snap, err := c.hub.snapshotFor(ctx, tenantID)
	if err != nil {
		c.sendError("unknown tenant")
		return
	}
	c.sendMessage(models.NewRoomMessage(models.MsgRoomJoined, snap))
}

// sendMessage queues a message for this subscriber only.
func (c *Client) sendMessage(msg models.RoomMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) sendError(reason string) {
	c.sendMessage(models.NewRoomMessage(models.MsgError, map[string]string{"error": reason}))
}

// closeSend is called by the hub when the client is dropped. Unregister and
// the slow-subscriber path can race, hence the once.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}
