package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

type fakeTokens struct {
	mu       sync.Mutex
	token    string
	reactive int
	revoked  string
}

func (f *fakeTokens) GetAccessToken(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeTokens) OnReactiveUnauthorized(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactive++
	return f.token, nil
}

func (f *fakeTokens) MarkRevoked(_ context.Context, tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = tenantID
}

type chanSink struct{ ch chan models.UpstreamEvent }

func (c *chanSink) Enqueue(ev models.UpstreamEvent) bool {
	select {
	case c.ch <- ev:
		return true
	default:
		return false
	}
}

// ircServer accepts the login handshake and then pushes the scripted lines.
// authFails controls how many connections are rejected with a login failure
// NOTICE before logins succeed.
func ircServer(t *testing.T, lines []string, authFails int) (*httptest.Server, *int64) {
	t.Helper()
	var conns int64
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt64(&conns, 1)

		// Consume the handshake lines (PASS, NICK, CAP, JOIN).
		joined := false
		for !joined {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			for _, line := range strings.Split(string(raw), "\r\n") {
				if strings.HasPrefix(line, "JOIN ") {
					joined = true
				}
			}
		}

		if int(n) <= authFails {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(":tmi.twitch.tv NOTICE * :Login authentication failed\r\n"))
			_, _, _ = conn.ReadMessage()
			_ = conn.Close()
			return
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(":tmi.twitch.tv 001 bot :Welcome, GLHF!\r\n"))
		for _, line := range lines {
			time.Sleep(20 * time.Millisecond)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(line+"\r\n"))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv, &conns
}

func newTestChat(t *testing.T, srv *httptest.Server, tokens TokenSource, sink EventSink, onRevoked func(string)) *Session {
	t.Helper()
	cfg := Config{
		WSURL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		BackoffBase: 10 * time.Millisecond,
		BackoffCap:  50 * time.Millisecond,
	}
	return NewSession("tenant-1", "streamer", cfg, tokens, sink, onRevoked, logging.NewLogger())
}

func TestChatPrivilegedCommandDispatched(t *testing.T) {
	line := `@badges=broadcaster/1;display-name=Streamer :streamer!streamer@streamer.tmi.twitch.tv PRIVMSG #streamer :!death+`
	srv, _ := ircServer(t, []string{line}, 0)
	defer srv.Close()

	sink := &chanSink{ch: make(chan models.UpstreamEvent, 16)}
	sess := newTestChat(t, srv, &fakeTokens{token: "tok"}, sink, nil)
	sess.Start()
	defer sess.Stop()

	select {
	case ev := <-sink.ch:
		if ev.Kind != models.EventChatCommand || ev.Payload.Command != "death+" {
			t.Errorf("event = %+v", ev)
		}
		if !ev.Payload.Privileged {
			t.Error("broadcaster command not marked privileged")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never dispatched")
	}
}

func TestChatUnauthorizedPrivilegedIgnored(t *testing.T) {
	lines := []string{
		`@badges=subscriber/3;display-name=Viewer :viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #streamer :!death+`,
		`@badges=subscriber/3;display-name=Viewer :viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #streamer :!deaths`,
	}
	srv, _ := ircServer(t, lines, 0)
	defer srv.Close()

	sink := &chanSink{ch: make(chan models.UpstreamEvent, 16)}
	sess := newTestChat(t, srv, &fakeTokens{token: "tok"}, sink, nil)
	sess.Start()
	defer sess.Stop()

	// Only the public query arrives; the privileged mutation is dropped.
	select {
	case ev := <-sink.ch:
		if ev.Payload.Command != "deaths" {
			t.Errorf("dispatched %q, want only the public command", ev.Payload.Command)
		}
		if ev.Payload.Privileged {
			t.Error("viewer marked privileged")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("public command never dispatched")
	}

	select {
	case ev := <-sink.ch:
		t.Fatalf("unexpected second event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChatAuthFailureReactiveThenRecovers(t *testing.T) {
	srv, conns := ircServer(t, nil, 1)
	defer srv.Close()

	tokens := &fakeTokens{token: "tok"}
	sink := &chanSink{ch: make(chan models.UpstreamEvent, 16)}
	sess := newTestChat(t, srv, tokens, sink, nil)
	sess.Start()
	defer sess.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tokens.mu.Lock()
		reactive := tokens.reactive
		tokens.mu.Unlock()
		if reactive == 1 && sess.Status().Connected && atomic.LoadInt64(conns) == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no recovery after auth failure: status=%+v conns=%d", sess.Status(), atomic.LoadInt64(conns))
}

func TestChatRepeatedAuthFailureRevokes(t *testing.T) {
	srv, _ := ircServer(t, nil, 100)
	defer srv.Close()

	var revoked atomic.Value
	tokens := &fakeTokens{token: "dead"}
	sink := &chanSink{ch: make(chan models.UpstreamEvent, 16)}
	sess := newTestChat(t, srv, tokens, sink, func(id string) { revoked.Store(id) })
	sess.Start()
	defer sess.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := revoked.Load().(string); ok {
			if got != "tenant-1" {
				t.Fatalf("revoked tenant = %q", got)
			}
			tokens.mu.Lock()
			defer tokens.mu.Unlock()
			if tokens.revoked != "tenant-1" {
				t.Error("MarkRevoked not called")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("revocation never surfaced")
}

func TestChatSendQueueDropsOldest(t *testing.T) {
	sink := &chanSink{ch: make(chan models.UpstreamEvent, 1)}
	sess := NewSession("tenant-1", "streamer", Config{}, &fakeTokens{token: "tok"}, sink, nil, logging.NewLogger())
	// Not started: the queue fills without a sender draining it.

	ctx := context.Background()
	for i := 0; i < sendQueueSize+10; i++ {
		_ = sess.Send(ctx, "msg")
	}
	if len(sess.out) != sendQueueSize {
		t.Errorf("queue length = %d, want %d", len(sess.out), sendQueueSize)
	}
}
