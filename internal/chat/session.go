// Package chat runs the IRC-over-websocket bot session for a tenant's
// channel: command parsing for counter mutations, public stat queries, and a
// rate-limited outbound queue for dispatcher echoes.
package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// DefaultWSURL is the upstream chat websocket endpoint.
const DefaultWSURL = "wss://irc-ws.chat.twitch.tv:443"

// sendQueueSize bounds the outbound queue; beyond it the oldest message is
// dropped.
const sendQueueSize = 50

// TokenSource is the credential surface the session needs.
type TokenSource interface {
	GetAccessToken(ctx context.Context, tenantID string) (string, error)
	OnReactiveUnauthorized(ctx context.Context, tenantID string) (string, error)
	MarkRevoked(ctx context.Context, tenantID string)
}

// EventSink receives chat-command events for dispatch.
type EventSink interface {
	Enqueue(ev models.UpstreamEvent) bool
}

// Config tunes a chat session. Zero values select the defaults.
type Config struct {
	WSURL       string
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (c Config) withDefaults() Config {
	if c.WSURL == "" {
		c.WSURL = DefaultWSURL
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 100 * time.Millisecond
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 30 * time.Second
	}
	return c
}

var errAuthFailed = errors.New("chat login authentication failed")

// Session is one tenant's chat bot connection.
type Session struct {
	tenantID      string
	login         string
	channel       string
	cfg           Config
	tokens        TokenSource
	sink          EventSink
	logger        logging.Logger
	onAuthRevoked func(tenantID string)

	limiter *rate.Limiter
	out     chan string

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	backoff    time.Duration
	authRetry  bool
	generation int
}

// NewSession builds a chat session joined to the tenant's own channel. login
// is the bot's authenticated username, which for streamer-owned tokens is the
// channel itself.
func NewSession(tenantID, login string, cfg Config, tokens TokenSource, sink EventSink, onAuthRevoked func(string), logger logging.Logger) *Session {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		tenantID:      tenantID,
		login:         strings.ToLower(login),
		channel:       strings.ToLower(login),
		cfg:           cfg,
		tokens:        tokens,
		sink:          sink,
		logger:        logger,
		onAuthRevoked: onAuthRevoked,
		// 20 messages per 30 seconds, the upstream limit for regular users.
		limiter: rate.NewLimiter(rate.Every(30*time.Second/20), 20),
		out:     make(chan string, sendQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		backoff: cfg.BackoffBase,
	}
}

// Start launches the connect loop and the outbound sender.
func (s *Session) Start() {
	go s.run()
	go s.sender()
}

// Stop tears the session down. Safe to call more than once.
func (s *Session) Stop() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	})
	<-s.done
}

// Status returns a snapshot of the bot connection state.
func (s *Session) Status() models.BotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.BotStatus{Connected: s.connected, Channel: s.channel}
}

// Send queues an outbound chat line. When the queue is full the oldest entry
// is dropped.
func (s *Session) Send(_ context.Context, text string) error {
	select {
	case s.out <- text:
		return nil
	default:
	}
	select {
	case dropped := <-s.out:
		s.logger.WithFields(logging.Fields{
			"tenant_id": s.tenantID,
			"dropped":   dropped,
		}).Warn("Chat send queue full, dropping oldest message")
	default:
	}
	select {
	case s.out <- text:
		return nil
	default:
		return fmt.Errorf("chat send queue full for %s", s.tenantID)
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
			s.logger.WithField("tenant_id", s.tenantID).Warn("Chat credentials revoked, stopping session")
			if s.onAuthRevoked != nil {
				s.onAuthRevoked(s.tenantID)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, errAuthFailed) {
			s.logger.WithError(err).WithField("tenant_id", s.tenantID).Warn("Chat session dropped, reconnecting")
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
	return d + time.Duration(rand.Int63n(int64(d)/10+1))
}

func (s *Session) connectAndServe() error {
	token, err := s.tokens.GetAccessToken(s.ctx, s.tenantID)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(s.ctx, s.cfg.WSURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.generation++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connected = false
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for _, line := range []string{
		"PASS oauth:" + token,
		"NICK " + s.login,
		"CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership",
		"JOIN #" + s.channel,
	} {
		if err := s.writeLine(conn, line); err != nil {
			return err
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, line := range strings.Split(string(raw), "\r\n") {
			if line == "" {
				continue
			}
			if err := s.handleLine(conn, line); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handleLine(conn *websocket.Conn, line string) error {
	msg := parseIRC(line)
	switch msg.Command {
	case "PING":
		return s.writeLine(conn, "PONG :"+msg.Trailing)

	case "001":
		s.mu.Lock()
		s.connected = true
		s.authRetry = false
		s.backoff = s.cfg.BackoffBase
		s.mu.Unlock()
		s.logger.WithFields(logging.Fields{
			"tenant_id": s.tenantID,
			"channel":   s.channel,
		}).Info("Chat session joined")

	case "NOTICE":
		if strings.Contains(msg.Trailing, "Login authentication failed") {
			return s.handleAuthFailure()
		}

	case "PRIVMSG":
		s.handlePrivmsg(msg)
	}
	return nil
}

// handleAuthFailure takes the reactive-refresh path once; a second failure in
// a row means the credentials are dead.
func (s *Session) handleAuthFailure() error {
	s.mu.Lock()
	retried := s.authRetry
	s.authRetry = true
	s.mu.Unlock()

	if retried {
		return models.ErrAuthRevoked
	}
	if _, err := s.tokens.OnReactiveUnauthorized(s.ctx, s.tenantID); err != nil {
		if errors.Is(err, models.ErrAuthRevoked) {
			return err
		}
		return fmt.Errorf("reactive token refresh: %w", err)
	}
	return errAuthFailed
}

func (s *Session) handlePrivmsg(msg ircMessage) {
	name, args, ok := ParseCommand(msg.Trailing)
	if !ok {
		return
	}
	cmd, known := Lookup(name)
	if !known {
		return
	}
	privileged := isPrivileged(msg.Tags)
	if cmd.Privileged && !privileged {
		// Unauthorized privileged commands are ignored without a reply.
		return
	}

	ev := models.UpstreamEvent{
		TenantID:   s.tenantID,
		Kind:       models.EventChatCommand,
		ReceivedAt: time.Now().UTC(),
		Payload: models.EventPayload{
			Command:     name,
			Args:        args,
			Privileged:  privileged,
			UserName:    senderName(msg.Prefix),
			DisplayName: msg.Tags["display-name"],
		},
	}
	if !s.sink.Enqueue(ev) {
		s.logger.WithFields(logging.Fields{
			"tenant_id": s.tenantID,
			"command":   name,
		}).Warn("Event queue full, dropping chat command")
	}
}

// sender drains the outbound queue through the rate limiter for the life of
// the session.
func (s *Session) sender() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.out:
			if err := s.limiter.Wait(s.ctx); err != nil {
				return
			}
			s.mu.Lock()
			conn := s.conn
			connected := s.connected
			s.mu.Unlock()
			if conn == nil || !connected {
				s.logger.WithField("tenant_id", s.tenantID).Debug("Dropping chat message while disconnected")
				continue
			}
			if err := s.writeLine(conn, "PRIVMSG #"+s.channel+" :"+text); err != nil {
				s.logger.WithError(err).WithField("tenant_id", s.tenantID).Warn("Chat send failed")
			}
		}
	}
}

func (s *Session) writeLine(conn *websocket.Conn, line string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n"))
}
