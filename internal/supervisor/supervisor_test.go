package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KainCH/omniasylum-sub001/internal/chat"
	"github.com/KainCH/omniasylum-sub001/internal/eventsub"
	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/internal/tokens"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
	"github.com/KainCH/omniasylum-sub001/pkg/testutil"
)

type nullSink struct{}

func (nullSink) Enqueue(models.UpstreamEvent) bool { return true }

type recordingHub struct {
	mu   sync.Mutex
	msgs []models.RoomMessage
}

func (h *recordingHub) BroadcastToTenant(_ string, msg models.RoomMessage) {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
}

func (h *recordingHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.msgs))
	for i, m := range h.msgs {
		out[i] = m.Type
	}
	return out
}

// Sessions dial an unreachable endpoint and just retry with backoff; the
// tests only exercise supervisor bookkeeping.
func newSupervisor(t *testing.T, tenant models.Tenant, withCreds bool) (*Supervisor, *recordingHub, *store.Repository) {
	t.Helper()
	repo := store.NewRepository(store.NewMemStore(), nil)
	if err := repo.PutTenant(context.Background(), tenant); err != nil {
		t.Fatalf("PutTenant: %v", err)
	}
	if withCreds {
		if err := repo.PutCredentials(context.Background(), testutil.NewCredentials(tenant.TenantID)); err != nil {
			t.Fatalf("PutCredentials: %v", err)
		}
	}
	broker := tokens.NewBroker(repo, tokens.Config{}, logging.NewLogger(), nil)
	sup := New(repo, broker, nullSink{}, Config{
		EventSub: eventsub.Config{WSURL: "ws://127.0.0.1:1", HelixURL: "http://127.0.0.1:1", BackoffBase: 50 * time.Millisecond},
		Chat:     chat.Config{WSURL: "ws://127.0.0.1:1", BackoffBase: 50 * time.Millisecond},
	}, logging.NewLogger())
	hub := &recordingHub{}
	sup.SetBroadcaster(hub)
	t.Cleanup(sup.StopAll)
	return sup, hub, repo
}

func TestStartMonitoringRequiresCredentials(t *testing.T) {
	sup, _, _ := newSupervisor(t, testutil.NewTenant("t1"), false)

	err := sup.StartMonitoring(context.Background(), "t1")
	if !errors.Is(err, models.ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
	if sup.IsMonitoring("t1") {
		t.Error("IsMonitoring = true after failed start")
	}
}

func TestStartMonitoringRejectsRevokedCredentials(t *testing.T) {
	sup, _, repo := newSupervisor(t, testutil.NewTenant("t1"), false)
	creds := testutil.NewCredentials("t1")
	creds.Revoked = true
	if err := repo.PutCredentials(context.Background(), creds); err != nil {
		t.Fatalf("PutCredentials: %v", err)
	}

	err := sup.StartMonitoring(context.Background(), "t1")
	if !errors.Is(err, models.ErrAuthRevoked) {
		t.Fatalf("err = %v, want ErrAuthRevoked", err)
	}
}

func TestStartMonitoringIdempotent(t *testing.T) {
	sup, hub, _ := newSupervisor(t, testutil.NewTenant("t1"), true)

	if err := sup.StartMonitoring(context.Background(), "t1"); err != nil {
		t.Fatalf("StartMonitoring: %v", err)
	}
	if err := sup.StartMonitoring(context.Background(), "t1"); err != nil {
		t.Fatalf("second StartMonitoring: %v", err)
	}
	if !sup.IsMonitoring("t1") {
		t.Error("IsMonitoring = false")
	}
	monitors, _ := sup.Counts()
	if monitors != 1 {
		t.Errorf("monitors = %d, want 1", monitors)
	}

	// Only the first start announces a status change.
	types := hub.types()
	if len(types) != 1 || types[0] != models.MsgEventSubStatusChanged {
		t.Errorf("broadcasts = %v", types)
	}
}

func TestStopMonitoring(t *testing.T) {
	sup, hub, _ := newSupervisor(t, testutil.NewTenant("t1"), true)

	if err := sup.StartMonitoring(context.Background(), "t1"); err != nil {
		t.Fatalf("StartMonitoring: %v", err)
	}
	sup.StopMonitoring("t1")
	if sup.IsMonitoring("t1") {
		t.Error("IsMonitoring = true after stop")
	}
	types := hub.types()
	if len(types) != 2 || types[1] != models.MsgEventSubStatusChanged {
		t.Errorf("broadcasts = %v", types)
	}

	// Stopping again is a no-op.
	sup.StopMonitoring("t1")
	if got := len(hub.types()); got != 2 {
		t.Errorf("broadcast count after double stop = %d, want 2", got)
	}
}

func TestForceReconnectStartsFreshSession(t *testing.T) {
	sup, _, _ := newSupervisor(t, testutil.NewTenant("t1"), true)

	if err := sup.ForceReconnect(context.Background(), "t1"); err != nil {
		t.Fatalf("ForceReconnect without session: %v", err)
	}
	if !sup.IsMonitoring("t1") {
		t.Error("IsMonitoring = false after reconnect")
	}
	if err := sup.ForceReconnect(context.Background(), "t1"); err != nil {
		t.Fatalf("ForceReconnect with session: %v", err)
	}
	monitors, _ := sup.Counts()
	if monitors != 1 {
		t.Errorf("monitors = %d, want 1", monitors)
	}
}

func TestStartChatRequiresFeature(t *testing.T) {
	tenant := testutil.NewTenant("t1")
	tenant.Features.ChatCommands = false
	sup, _, _ := newSupervisor(t, tenant, true)

	err := sup.StartChat(context.Background(), "t1")
	if !errors.Is(err, models.ErrFeatureDisabled) {
		t.Fatalf("err = %v, want ErrFeatureDisabled", err)
	}
}

func TestChatLifecycle(t *testing.T) {
	sup, hub, _ := newSupervisor(t, testutil.NewTenant("t1"), true)

	if err := sup.StartChat(context.Background(), "t1"); err != nil {
		t.Fatalf("StartChat: %v", err)
	}
	if err := sup.StartChat(context.Background(), "t1"); err != nil {
		t.Fatalf("second StartChat: %v", err)
	}
	_, bots := sup.Counts()
	if bots != 1 {
		t.Errorf("bots = %d, want 1", bots)
	}

	if err := sup.Send(context.Background(), "t1", "hello"); err != nil {
		t.Errorf("Send: %v", err)
	}

	sup.StopChat("t1")
	if err := sup.Send(context.Background(), "t1", "hello"); err == nil {
		t.Error("Send succeeded with no chat session")
	}

	types := hub.types()
	if len(types) != 2 || types[0] != models.MsgBotStatusChanged || types[1] != models.MsgBotStatusChanged {
		t.Errorf("broadcasts = %v", types)
	}
}

func TestAuthRevocationStopsSessionsAndNotifiesRoom(t *testing.T) {
	sup, hub, _ := newSupervisor(t, testutil.NewTenant("t1"), true)

	if err := sup.StartMonitoring(context.Background(), "t1"); err != nil {
		t.Fatalf("StartMonitoring: %v", err)
	}
	if err := sup.StartChat(context.Background(), "t1"); err != nil {
		t.Fatalf("StartChat: %v", err)
	}

	// Fires the way a running session does when its refresh comes back
	// permanently rejected.
	sup.onAuthRevoked("t1")

	deadline := time.Now().Add(2 * time.Second)
	for {
		monitors, bots := sup.Counts()
		revoked := false
		for _, typ := range hub.types() {
			if typ == models.MsgAuthRevoked {
				revoked = true
			}
		}
		if monitors == 0 && bots == 0 && revoked {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("teardown incomplete: monitors=%d bots=%d broadcasts=%v",
				monitors, bots, hub.types())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if sup.IsMonitoring("t1") {
		t.Error("IsMonitoring = true after revocation")
	}

	// The room hears both session stops before the revocation notice.
	types := hub.types()
	if types[len(types)-1] != models.MsgAuthRevoked {
		t.Errorf("last broadcast = %v, want %s", types, models.MsgAuthRevoked)
	}
}

func TestMonitorStatusWhenIdle(t *testing.T) {
	sup, _, _ := newSupervisor(t, testutil.NewTenant("t1"), true)

	status := sup.MonitorStatus("t1")
	if status.Connected {
		t.Error("Connected = true with no session")
	}
	if status.Subscriptions == nil {
		t.Error("Subscriptions = nil, want empty slice")
	}
	if bot := sup.ChatStatus("t1"); bot.Connected {
		t.Error("bot Connected = true with no session")
	}
}

func TestStopAll(t *testing.T) {
	sup, _, _ := newSupervisor(t, testutil.NewTenant("t1"), true)

	if err := sup.StartMonitoring(context.Background(), "t1"); err != nil {
		t.Fatalf("StartMonitoring: %v", err)
	}
	if err := sup.StartChat(context.Background(), "t1"); err != nil {
		t.Fatalf("StartChat: %v", err)
	}

	sup.StopAll()
	monitors, bots := sup.Counts()
	if monitors != 0 || bots != 0 {
		t.Errorf("counts after StopAll = %d/%d, want 0/0", monitors, bots)
	}
}
