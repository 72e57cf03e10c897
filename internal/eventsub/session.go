// Package eventsub maintains one upstream EventSub websocket per monitored
// tenant: welcome handshake, subscription creation, keepalive watchdog,
// transparent reconnects and normalization of notifications into the
// dispatcher's event stream.
package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// DefaultWSURL is the upstream EventSub websocket endpoint.
const DefaultWSURL = "wss://eventsub.wss.twitch.tv/ws"

// TokenSource is the credential surface a session needs. Implemented by the
// token broker.
type TokenSource interface {
	GetAccessToken(ctx context.Context, tenantID string) (string, error)
	OnReactiveUnauthorized(ctx context.Context, tenantID string) (string, error)
	MarkRevoked(ctx context.Context, tenantID string)
}

// EventSink receives normalized events. Enqueue reports false when the sink
// is saturated; the event is dropped with a warning.
type EventSink interface {
	Enqueue(ev models.UpstreamEvent) bool
}

// Config tunes a session. Zero values select the defaults.
type Config struct {
	WSURL           string
	HelixURL        string
	ClientID        string
	KeepaliveWindow time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration
}

func (c Config) withDefaults() Config {
	if c.WSURL == "" {
		c.WSURL = DefaultWSURL
	}
	if c.KeepaliveWindow == 0 {
		c.KeepaliveWindow = 60 * time.Second
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 100 * time.Millisecond
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 30 * time.Second
	}
	return c
}

// Session is one tenant's upstream event connection. Create with NewSession,
// drive with Start, stop with Close.
type Session struct {
	tenantID      string
	cfg           Config
	helix         *HelixClient
	tokens        TokenSource
	sink          EventSink
	logger        logging.Logger
	onAuthRevoked func(tenantID string)

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	conn          *websocket.Conn
	sessionID     string
	keepalive     time.Duration
	subs          []models.EventSubSubscription
	connected     bool
	lastConnected *time.Time
	backoff       time.Duration
}

// NewSession builds a session for one tenant. onAuthRevoked is invoked at
// most once, after credentials are confirmed dead.
func NewSession(tenantID string, cfg Config, tokens TokenSource, sink EventSink, onAuthRevoked func(string), logger logging.Logger) *Session {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		tenantID:      tenantID,
		cfg:           cfg,
		helix:         NewHelixClient(cfg.HelixURL, cfg.ClientID),
		tokens:        tokens,
		sink:          sink,
		logger:        logger,
		onAuthRevoked: onAuthRevoked,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		keepalive:     cfg.KeepaliveWindow,
		backoff:       cfg.BackoffBase,
	}
}

// Start launches the connect loop.
func (s *Session) Start() {
	go s.run()
}

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		}
	})
	<-s.done
}

// Status returns a snapshot of the session state.
func (s *Session) Status() models.MonitorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make([]models.EventSubSubscription, len(s.subs))
	copy(subs, s.subs)
	return models.MonitorStatus{
		Connected:     s.connected,
		SessionID:     s.sessionID,
		Subscriptions: subs,
		LastConnected: s.lastConnected,
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		if s.ctx.Err() != nil {
			return
		}
		err := s.connectAndServe()
		if err != nil && errors.Is(err, models.ErrAuthRevoked) {
			s.tokens.MarkRevoked(s.ctx, s.tenantID)
			s.logger.WithField("tenant_id", s.tenantID).Warn("EventSub credentials revoked, stopping session")
			if s.onAuthRevoked != nil {
				s.onAuthRevoked(s.tenantID)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.WithError(err).WithField("tenant_id", s.tenantID).Warn("EventSub session dropped, reconnecting")
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.nextBackoff()):
		}
	}
}

func (s *Session) nextBackoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.backoff
	s.backoff *= 2
	if s.backoff > s.cfg.BackoffCap {
		s.backoff = s.cfg.BackoffCap
	}
	// 10% jitter to avoid herd reconnects.
	return d + time.Duration(rand.Int63n(int64(d)/10+1))
}

func (s *Session) resetBackoff() {
	s.mu.Lock()
	s.backoff = s.cfg.BackoffBase
	s.mu.Unlock()
}

type frame struct {
	Metadata struct {
		MessageType      string `json:"message_type"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"metadata"`
	Payload framePayload `json:"payload"`
}

type sessionInfo struct {
	ID                      string `json:"id"`
	KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
	ReconnectURL            string `json:"reconnect_url"`
}

type framePayload struct {
	Session *sessionInfo `json:"session"`
	Subscription *struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Status string `json:"status"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

// connectAndServe runs one socket generation: dial, welcome, subscriptions,
// read loop. Returns when the socket dies or the session is closed.
func (s *Session) connectAndServe() error {
	conn, welcome, err := s.dial(s.cfg.WSURL)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.conn = conn
	s.sessionID = welcome.ID
	if welcome.KeepaliveTimeoutSeconds > 0 {
		s.keepalive = time.Duration(welcome.KeepaliveTimeoutSeconds) * time.Second
	}
	s.connected = true
	s.lastConnected = &now
	s.subs = nil
	s.mu.Unlock()

	// Closes whichever socket is current; a reconnect may have swapped it.
	defer func() {
		s.mu.Lock()
		s.connected = false
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.conn = nil
		s.mu.Unlock()
	}()

	// Subscriptions are created once per fresh welcome. A reconnect welcome
	// carries them over.
	if err := s.createSubscriptions(); err != nil {
		return err
	}

	s.logger.WithFields(logging.Fields{
		"tenant_id":  s.tenantID,
		"session_id": welcome.ID,
	}).Info("EventSub session established")

	return s.readLoop(conn)
}

// dial opens a socket and consumes the welcome frame.
func (s *Session) dial(wsURL string) (*websocket.Conn, *sessionInfo, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(s.ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if f.Metadata.MessageType != "session_welcome" || f.Payload.Session == nil {
		_ = conn.Close()
		return nil, nil, errors.New("expected session_welcome frame")
	}
	return conn, f.Payload.Session, nil
}

// createSubscriptions registers the catalog against the current session. A
// 401 triggers one reactive token refresh and one retry; a second 401 means
// the credentials are dead.
func (s *Session) createSubscriptions() error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	token, err := s.tokens.GetAccessToken(s.ctx, s.tenantID)
	if err != nil {
		return err
	}

	for _, want := range SubscriptionCatalog(s.tenantID) {
		created, err := s.helix.CreateSubscription(s.ctx, token, sessionID, want)
		if errors.Is(err, models.ErrUnauthorized) {
			token, err = s.tokens.OnReactiveUnauthorized(s.ctx, s.tenantID)
			if err != nil {
				return err
			}
			created, err = s.helix.CreateSubscription(s.ctx, token, sessionID, want)
			if errors.Is(err, models.ErrUnauthorized) {
				return models.ErrAuthRevoked
			}
		}
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.subs = append(s.subs, created)
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn) error {
	for {
		s.mu.Lock()
		window := s.keepalive
		s.mu.Unlock()
		_ = conn.SetReadDeadline(time.Now().Add(window))

		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch f.Metadata.MessageType {
		case "session_keepalive":
			// Liveness only; the read deadline is the watchdog.

		case "notification":
			s.handleNotification(f)

		case "session_reconnect":
			next, err := s.handleReconnect(f)
			if err != nil {
				return err
			}
			_ = conn.Close()
			conn = next

		case "revocation":
			s.handleRevocation(f)

		default:
			s.logger.WithFields(logging.Fields{
				"tenant_id":    s.tenantID,
				"message_type": f.Metadata.MessageType,
			}).Debug("Ignoring unknown EventSub frame")
		}
	}
}

func (s *Session) handleNotification(f frame) {
	subType := f.Metadata.SubscriptionType
	if subType == "" && f.Payload.Subscription != nil {
		subType = f.Payload.Subscription.Type
	}
	ev, err := normalize(s.tenantID, subType, f.Payload.Event, time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).WithField("tenant_id", s.tenantID).Warn("Dropping malformed notification")
		return
	}
	if !s.sink.Enqueue(ev) {
		s.logger.WithFields(logging.Fields{
			"tenant_id": s.tenantID,
			"kind":      ev.Kind,
		}).Warn("Event queue full, dropping event")
		return
	}
	s.resetBackoff()
}

// handleReconnect dials the replacement socket and waits for its welcome
// before abandoning the old one. Subscriptions carry over; none are
// re-created.
func (s *Session) handleReconnect(f frame) (*websocket.Conn, error) {
	if f.Payload.Session == nil || f.Payload.Session.ReconnectURL == "" {
		return nil, errors.New("session_reconnect without reconnect_url")
	}
	conn, welcome, err := s.dial(f.Payload.Session.ReconnectURL)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.sessionID = welcome.ID
	if welcome.KeepaliveTimeoutSeconds > 0 {
		s.keepalive = time.Duration(welcome.KeepaliveTimeoutSeconds) * time.Second
	}
	s.mu.Unlock()

	s.logger.WithFields(logging.Fields{
		"tenant_id":  s.tenantID,
		"session_id": welcome.ID,
	}).Info("EventSub session migrated")
	return conn, nil
}

// handleRevocation drops the named subscription. It is never retried on this
// session.
func (s *Session) handleRevocation(f frame) {
	if f.Payload.Subscription == nil {
		return
	}
	revoked := f.Payload.Subscription
	s.mu.Lock()
	kept := s.subs[:0]
	for _, sub := range s.subs {
		if sub.ID != revoked.ID {
			kept = append(kept, sub)
		}
	}
	s.subs = kept
	s.mu.Unlock()

	s.logger.WithFields(logging.Fields{
		"tenant_id": s.tenantID,
		"type":      revoked.Type,
		"status":    revoked.Status,
	}).Warn("EventSub subscription revoked upstream")
}
