package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
	"github.com/KainCH/omniasylum-sub001/pkg/testutil"
)

type fakeStreams struct {
	mu        sync.Mutex
	started   int
	ended     int
	broadcast []models.RoomMessage
}

func (f *fakeStreams) StartStream(_ context.Context, tenantID string) (models.Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return models.Counters{TenantID: tenantID}, nil
}

func (f *fakeStreams) EndStream(_ context.Context, tenantID string) (models.Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
	return models.Counters{TenantID: tenantID}, nil
}

func (f *fakeStreams) Broadcast(_ context.Context, _ string, msg models.RoomMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, msg)
}

func (f *fakeStreams) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.broadcast))
	for i, m := range f.broadcast {
		out[i] = m.Type
	}
	return out
}

type fakeSessions struct {
	mu             sync.Mutex
	chatStarts     int
	chatStops      int
	monitorStops   int
	reconnects     int
	monitorStarts  int
	reconnectError error
}

func (f *fakeSessions) StartMonitoring(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitorStarts++
	return nil
}

func (f *fakeSessions) StopMonitoring(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitorStops++
}

func (f *fakeSessions) ForceReconnect(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return f.reconnectError
}

func (f *fakeSessions) StartChat(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatStarts++
	return nil
}

func (f *fakeSessions) StopChat(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatStops++
}

func newController(t *testing.T, tenant models.Tenant) (*Controller, *fakeStreams, *fakeSessions, *store.Repository) {
	t.Helper()
	repo := store.NewRepository(store.NewMemStore(), nil)
	if err := repo.PutTenant(context.Background(), tenant); err != nil {
		t.Fatalf("PutTenant: %v", err)
	}
	streams := &fakeStreams{}
	sessions := &fakeSessions{}
	return NewController(repo, streams, sessions, logging.NewLogger()), streams, sessions, repo
}

func TestPrepStartsChatAndReconnects(t *testing.T) {
	c, streams, sessions, repo := newController(t, testutil.NewTenant("t1"))

	tenant, err := c.Prep(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Prep: %v", err)
	}
	if tenant.StreamStatus != models.StatusPrepping {
		t.Errorf("status = %s, want prepping", tenant.StreamStatus)
	}
	if sessions.chatStarts != 1 {
		t.Errorf("chat starts = %d, want 1", sessions.chatStarts)
	}
	if sessions.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", sessions.reconnects)
	}

	stored, _ := repo.GetTenant(context.Background(), "t1")
	if stored.StreamStatus != models.StatusPrepping {
		t.Errorf("persisted status = %s", stored.StreamStatus)
	}
	if types := streams.types(); len(types) != 1 || types[0] != models.MsgStreamStatusChanged {
		t.Errorf("broadcasts = %v", types)
	}
}

func TestPrepSkipsChatWhenFeatureDisabled(t *testing.T) {
	tenant := testutil.NewTenant("t1")
	tenant.Features.ChatCommands = false
	c, _, sessions, _ := newController(t, tenant)

	if _, err := c.Prep(context.Background(), "t1"); err != nil {
		t.Fatalf("Prep: %v", err)
	}
	if sessions.chatStarts != 0 {
		t.Errorf("chat starts = %d, want 0", sessions.chatStarts)
	}
	if sessions.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", sessions.reconnects)
	}
}

func TestPrepFromLiveRejected(t *testing.T) {
	tenant := testutil.NewTenant("t1")
	tenant.StreamStatus = models.StatusLive
	c, _, _, _ := newController(t, tenant)

	_, err := c.Prep(context.Background(), "t1")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestGoLiveFromPrepping(t *testing.T) {
	tenant := testutil.NewTenant("t1")
	tenant.StreamStatus = models.StatusPrepping
	c, streams, _, _ := newController(t, tenant)

	got, err := c.GoLive(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GoLive: %v", err)
	}
	if got.StreamStatus != models.StatusLive {
		t.Errorf("status = %s, want live", got.StreamStatus)
	}
	if streams.started != 1 {
		t.Errorf("StartStream calls = %d, want 1", streams.started)
	}
	types := streams.types()
	if len(types) != 2 || types[0] != models.MsgStreamStatusChanged || types[1] != models.MsgStreamStarted {
		t.Errorf("broadcasts = %v", types)
	}
}

func TestGoLiveFromOfflineRejected(t *testing.T) {
	c, streams, _, _ := newController(t, testutil.NewTenant("t1"))

	_, err := c.GoLive(context.Background(), "t1")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if streams.started != 0 {
		t.Errorf("StartStream calls = %d, want 0", streams.started)
	}
}

func TestEndStreamFromLive(t *testing.T) {
	tenant := testutil.NewTenant("t1")
	tenant.StreamStatus = models.StatusLive
	c, streams, sessions, repo := newController(t, tenant)

	got, err := c.EndStream(context.Background(), "t1")
	if err != nil {
		t.Fatalf("EndStream: %v", err)
	}
	if got.StreamStatus != models.StatusOffline {
		t.Errorf("status = %s, want offline", got.StreamStatus)
	}
	if streams.ended != 1 {
		t.Errorf("EndStream marker calls = %d, want 1", streams.ended)
	}
	if sessions.chatStops != 1 || sessions.monitorStops != 1 {
		t.Errorf("stops = chat %d monitor %d, want 1/1", sessions.chatStops, sessions.monitorStops)
	}

	// Transient ending status is broadcast before the final offline.
	types := streams.types()
	if len(types) != 3 || types[2] != models.MsgStreamEnded {
		t.Errorf("broadcasts = %v", types)
	}

	stored, _ := repo.GetTenant(context.Background(), "t1")
	if stored.StreamStatus != models.StatusOffline {
		t.Errorf("persisted status = %s", stored.StreamStatus)
	}
}

func TestEndStreamFromPreppingSkipsMarkers(t *testing.T) {
	tenant := testutil.NewTenant("t1")
	tenant.StreamStatus = models.StatusPrepping
	c, streams, _, _ := newController(t, tenant)

	got, err := c.EndStream(context.Background(), "t1")
	if err != nil {
		t.Fatalf("EndStream: %v", err)
	}
	if got.StreamStatus != models.StatusOffline {
		t.Errorf("status = %s, want offline", got.StreamStatus)
	}
	if streams.ended != 0 {
		t.Errorf("EndStream marker calls = %d, want 0", streams.ended)
	}
}

func TestEndStreamFromOfflineRejected(t *testing.T) {
	c, _, _, _ := newController(t, testutil.NewTenant("t1"))

	_, err := c.EndStream(context.Background(), "t1")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelPrep(t *testing.T) {
	tenant := testutil.NewTenant("t1")
	tenant.StreamStatus = models.StatusPrepping
	c, streams, sessions, _ := newController(t, tenant)

	got, err := c.CancelPrep(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CancelPrep: %v", err)
	}
	if got.StreamStatus != models.StatusOffline {
		t.Errorf("status = %s, want offline", got.StreamStatus)
	}
	if streams.started != 0 || streams.ended != 0 {
		t.Errorf("counter markers touched: started %d ended %d", streams.started, streams.ended)
	}
	if sessions.chatStops != 1 || sessions.monitorStops != 1 {
		t.Errorf("stops = chat %d monitor %d, want 1/1", sessions.chatStops, sessions.monitorStops)
	}
}

func TestCancelPrepFromLiveRejected(t *testing.T) {
	tenant := testutil.NewTenant("t1")
	tenant.StreamStatus = models.StatusLive
	c, _, _, _ := newController(t, tenant)

	_, err := c.CancelPrep(context.Background(), "t1")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestUnknownTenant(t *testing.T) {
	c, _, _, _ := newController(t, testutil.NewTenant("t1"))

	_, err := c.Prep(context.Background(), "nope")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
