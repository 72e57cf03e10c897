package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KainCH/omniasylum-sub001/internal/chat"
	"github.com/KainCH/omniasylum-sub001/internal/counters"
	"github.com/KainCH/omniasylum-sub001/internal/dispatch"
	"github.com/KainCH/omniasylum-sub001/internal/eventsub"
	"github.com/KainCH/omniasylum-sub001/internal/lifecycle"
	"github.com/KainCH/omniasylum-sub001/internal/rooms"
	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/internal/supervisor"
	"github.com/KainCH/omniasylum-sub001/internal/tokens"
	"github.com/KainCH/omniasylum-sub001/pkg/auth"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
	"github.com/KainCH/omniasylum-sub001/pkg/testutil"
)

var testSecret = []byte("handlers-test-secret")

const testServiceToken = "service-secret"

type fixture struct {
	router     *gin.Engine
	repo       *store.Repository
	dispatcher *dispatch.Dispatcher
	sup        *supervisor.Supervisor
}

// newFixture assembles the full stack over a MemStore. Session endpoints
// point at unreachable addresses; supervisor bookkeeping still works.
func newFixture(t *testing.T, tenantList ...models.Tenant) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := store.NewRepository(store.NewMemStore(), nil)
	for _, tn := range tenantList {
		if err := repo.PutTenant(context.Background(), tn); err != nil {
			t.Fatalf("PutTenant: %v", err)
		}
		if err := repo.PutCredentials(context.Background(), testutil.NewCredentials(tn.TenantID)); err != nil {
			t.Fatalf("PutCredentials: %v", err)
		}
	}

	logger := logging.NewLogger()
	engine := counters.NewEngine(repo, counters.ThresholdSourceFunc(func(ctx context.Context, id string) models.ThresholdConfig {
		tn, err := repo.GetTenant(ctx, id)
		if err != nil {
			return models.ThresholdConfig{}
		}
		return tn.CounterThresholds
	}), logger)

	broker := tokens.NewBroker(repo, tokens.Config{}, logger, nil)
	sup := supervisor.New(repo, broker, nil, supervisor.Config{
		EventSub: eventsub.Config{WSURL: "ws://127.0.0.1:1", HelixURL: "http://127.0.0.1:1", BackoffBase: 50 * time.Millisecond},
		Chat:     chat.Config{WSURL: "ws://127.0.0.1:1", BackoffBase: 50 * time.Millisecond},
	}, logger)

	d := dispatch.New(engine, repo, dispatch.Config{Chat: sup}, logger)
	hub := rooms.NewHub(repo, d, sup, testSecret, logger)
	d.SetHub(hub)
	sup.SetBroadcaster(hub)
	sup.SetSink(d)

	lc := lifecycle.NewController(repo, d, sup, logger)
	webhook := dispatch.NewWebhookSender(0, logger)

	h := New(repo, d, lc, sup, broker, hub, webhook, Config{
		JWTSecret:    testSecret,
		ServiceToken: testServiceToken,
	}, logger)

	router := gin.New()
	h.Register(router)
	t.Cleanup(sup.StopAll)
	return &fixture{router: router, repo: repo, dispatcher: d, sup: sup}
}

func token(t *testing.T, tenantID, role string) string {
	t.Helper()
	tok, err := auth.GenerateJWT(tenantID, tenantID, "login_"+tenantID, role, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestCountersRequireAuth(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))

	if w := f.do(t, http.MethodGet, "/api/counters", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestCounterIncrementDecrement(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	w := f.do(t, http.MethodPost, "/api/counters/deaths/increment", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("increment status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Counters models.Counters `json:"counters"`
	}
	decode(t, w, &resp)
	if resp.Counters.Deaths != 1 {
		t.Errorf("deaths = %d, want 1", resp.Counters.Deaths)
	}

	w = f.do(t, http.MethodPost, "/api/counters/deaths/decrement", tok, nil)
	decode(t, w, &resp)
	if resp.Counters.Deaths != 0 {
		t.Errorf("deaths after decrement = %d, want 0", resp.Counters.Deaths)
	}

	// Decrement at zero stays 200 with unchanged state.
	w = f.do(t, http.MethodPost, "/api/counters/deaths/decrement", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("decrement at zero status = %d", w.Code)
	}
	decode(t, w, &resp)
	if resp.Counters.Deaths != 0 {
		t.Errorf("deaths = %d, want 0", resp.Counters.Deaths)
	}
}

func TestCounterRejectsUnknownKind(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	if w := f.do(t, http.MethodPost, "/api/counters/health/increment", tok, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/counters/bits/increment", tok, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bits mutation status = %d, want 400", w.Code)
	}
}

func TestExportText(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	f.do(t, http.MethodPost, "/api/counters/deaths/increment", tok, nil)
	f.do(t, http.MethodPost, "/api/counters/swears/increment", tok, nil)

	w := f.do(t, http.MethodGet, "/api/counters/export?format=text", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := "Deaths: 1 | Swears: 1 | Screams: 0 | Bits: 0"
	if w.Body.String() != want {
		t.Errorf("body = %q, want %q", w.Body.String(), want)
	}
}

func TestSeriesRoundTrip(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	f.do(t, http.MethodPost, "/api/counters/deaths/increment", tok, nil)

	w := f.do(t, http.MethodPost, "/api/counters/series/save", tok, map[string]string{"seriesName": "Elden Ring"})
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", w.Code, w.Body.String())
	}
	var snap models.SeriesSnapshot
	decode(t, w, &snap)
	if snap.Deaths != 1 {
		t.Errorf("snapshot deaths = %d, want 1", snap.Deaths)
	}

	f.do(t, http.MethodPost, "/api/counters/reset", tok, nil)

	w = f.do(t, http.MethodPost, "/api/counters/series/load", tok, map[string]string{"seriesId": snap.SeriesID})
	if w.Code != http.StatusOK {
		t.Fatalf("load status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Counters models.Counters `json:"counters"`
	}
	decode(t, w, &resp)
	if resp.Counters.Deaths != 1 {
		t.Errorf("restored deaths = %d, want 1", resp.Counters.Deaths)
	}

	w = f.do(t, http.MethodGet, "/api/counters/series/list", tok, nil)
	var list struct {
		Series []models.SeriesSnapshot `json:"series"`
	}
	decode(t, w, &list)
	if len(list.Series) != 1 {
		t.Fatalf("series count = %d, want 1", len(list.Series))
	}

	if w := f.do(t, http.MethodDelete, "/api/counters/series/"+snap.SeriesID, tok, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/counters/series/"+snap.SeriesID, tok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", w.Code)
	}
}

func TestLoadUnknownSeries(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	w := f.do(t, http.MethodPost, "/api/counters/series/load", tok, map[string]string{"seriesId": "missing"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	// go-live from offline is rejected as a caller mistake.
	if w := f.do(t, http.MethodPost, "/api/stream/go-live", tok, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("go-live from offline status = %d, want 400", w.Code)
	}

	if w := f.do(t, http.MethodPost, "/api/stream/prep", tok, nil); w.Code != http.StatusOK {
		t.Fatalf("prep status = %d: %s", w.Code, w.Body.String())
	}
	w := f.do(t, http.MethodPost, "/api/stream/go-live", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("go-live status = %d: %s", w.Code, w.Body.String())
	}
	var status struct {
		Status        string     `json:"status"`
		StreamStarted *time.Time `json:"streamStarted"`
	}
	decode(t, w, &status)
	if status.Status != models.StatusLive {
		t.Errorf("status = %s, want live", status.Status)
	}
	if status.StreamStarted == nil {
		t.Error("streamStarted = nil after go-live")
	}

	if w := f.do(t, http.MethodPost, "/api/stream/end-stream", tok, nil); w.Code != http.StatusOK {
		t.Fatalf("end-stream status = %d", w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/stream/status", tok, nil)
	status.Status, status.StreamStarted = "", nil
	decode(t, w, &status)
	if status.Status != models.StatusOffline {
		t.Errorf("final status = %s, want offline", status.Status)
	}
	if status.StreamStarted != nil {
		t.Error("streamStarted survived end-stream")
	}
}

func TestMonitorEndpoints(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	if w := f.do(t, http.MethodPost, "/api/stream/monitor/start", tok, nil); w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	w := f.do(t, http.MethodGet, "/api/stream/monitor/status", tok, nil)
	var status struct {
		Connected     bool                          `json:"connected"`
		Subscriptions []models.EventSubSubscription `json:"subscriptions"`
	}
	decode(t, w, &status)
	if status.Subscriptions == nil {
		t.Error("subscriptions = nil, want array")
	}
	if w := f.do(t, http.MethodPost, "/api/stream/monitor/stop", tok, nil); w.Code != http.StatusOK {
		t.Fatalf("stop status = %d", w.Code)
	}
}

func TestMonitorStartWithRevokedCredentials(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	creds := testutil.NewCredentials("t1")
	creds.Revoked = true
	if err := f.repo.PutCredentials(context.Background(), creds); err != nil {
		t.Fatalf("PutCredentials: %v", err)
	}
	tok := token(t, "t1", models.RoleStreamer)

	if w := f.do(t, http.MethodPost, "/api/stream/monitor/start", tok, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestBotToggle(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	if w := f.do(t, http.MethodPost, "/api/stream/bot/toggle", tok, map[string]string{"action": "dance"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad action status = %d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/stream/bot/toggle", tok, map[string]string{"action": "start"}); w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	if w := f.do(t, http.MethodPost, "/api/stream/bot/toggle", tok, map[string]string{"action": "stop"}); w.Code != http.StatusOK {
		t.Fatalf("stop status = %d", w.Code)
	}
}

func TestAlertCRUD(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	w := f.do(t, http.MethodGet, "/api/alerts", tok, nil)
	var list struct {
		Alerts []models.AlertDefinition `json:"alerts"`
	}
	decode(t, w, &list)
	if len(list.Alerts) != len(models.DefaultAlerts()) {
		t.Fatalf("default alert count = %d, want %d", len(list.Alerts), len(models.DefaultAlerts()))
	}

	body := map[string]interface{}{
		"type":         models.AlertTypeCustom,
		"name":         "Hydrate",
		"textTemplate": "{username} says hydrate!",
		"durationMs":   4000,
	}
	w = f.do(t, http.MethodPost, "/api/alerts", tok, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created models.AlertDefinition
	decode(t, w, &created)
	if created.AlertID == "" || !created.Enabled {
		t.Errorf("created alert = %+v", created)
	}

	// durationMs outside the allowed range.
	body["durationMs"] = 500
	if w := f.do(t, http.MethodPost, "/api/alerts", tok, body); w.Code != http.StatusBadRequest {
		t.Fatalf("short duration status = %d, want 400", w.Code)
	}

	body["durationMs"] = 4000
	body["name"] = "Hydrate v2"
	w = f.do(t, http.MethodPut, "/api/alerts/"+created.AlertID, tok, body)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}

	// Defaults are read-only.
	defaultID := models.DefaultAlertID(models.AlertTypeFollow)
	if w := f.do(t, http.MethodPut, "/api/alerts/"+defaultID, tok, body); w.Code != http.StatusBadRequest {
		t.Fatalf("update default status = %d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/alerts/"+defaultID, tok, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("delete default status = %d, want 400", w.Code)
	}

	if w := f.do(t, http.MethodDelete, "/api/alerts/"+created.AlertID, tok, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/alerts/"+created.AlertID, tok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", w.Code)
	}
}

func TestEventMappings(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	w := f.do(t, http.MethodGet, "/api/alerts/event-mappings", tok, nil)
	var mapping models.EventMapping
	decode(t, w, &mapping)
	if mapping.Mappings[string(models.EventFollow)] != models.DefaultAlertID(models.AlertTypeFollow) {
		t.Errorf("default follow mapping = %q", mapping.Mappings[string(models.EventFollow)])
	}

	// Unknown event name rejected.
	bad := map[string]interface{}{"mappings": map[string]string{"hype-train": "default-follow"}}
	if w := f.do(t, http.MethodPut, "/api/alerts/event-mappings", tok, bad); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown event status = %d, want 400", w.Code)
	}

	// Mapping to a missing alert rejected.
	missing := map[string]interface{}{"mappings": map[string]string{string(models.EventFollow): "no-such-alert"}}
	if w := f.do(t, http.MethodPut, "/api/alerts/event-mappings", tok, missing); w.Code != http.StatusNotFound {
		t.Fatalf("missing alert status = %d, want 404", w.Code)
	}

	good := map[string]interface{}{"mappings": map[string]string{
		string(models.EventFollow): models.MappingNone,
		string(models.EventCheer):  models.DefaultAlertID(models.AlertTypeBits),
	}}
	if w := f.do(t, http.MethodPut, "/api/alerts/event-mappings", tok, good); w.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodGet, "/api/alerts/event-mappings", tok, nil)
	decode(t, w, &mapping)
	if mapping.Mappings[string(models.EventFollow)] != models.MappingNone {
		t.Errorf("follow mapping = %q, want none", mapping.Mappings[string(models.EventFollow)])
	}
}

func TestOverlaySettings(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	doc := map[string]interface{}{"theme": "dark", "counterPosition": "top-left"}
	w := f.do(t, http.MethodPut, "/api/user/overlay-settings", tok, doc)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/user/overlay-settings", tok, nil)
	var resp struct {
		Settings map[string]interface{} `json:"settings"`
	}
	decode(t, w, &resp)
	if resp.Settings["theme"] != "dark" {
		t.Errorf("settings = %v", resp.Settings)
	}
}

func TestWebhookConfigAndTest(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	tok := token(t, "t1", models.RoleStreamer)

	if w := f.do(t, http.MethodPut, "/api/user/webhook", tok, map[string]string{"url": "ftp://nope"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad scheme status = %d, want 400", w.Code)
	}

	received := 0
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer target.Close()

	if w := f.do(t, http.MethodPut, "/api/user/webhook", tok, map[string]string{"url": target.URL}); w.Code != http.StatusOK {
		t.Fatalf("put status = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/user/webhook/test", tok, nil); w.Code != http.StatusOK {
		t.Fatalf("test status = %d: %s", w.Code, w.Body.String())
	}
	if received != 1 {
		t.Errorf("webhook deliveries = %d, want 1", received)
	}

	target.Close()
	if w := f.do(t, http.MethodPost, "/api/user/webhook/test", tok, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("test against dead target status = %d, want 500", w.Code)
	}
}

func TestBindCreatesTenantAndIssuesToken(t *testing.T) {
	f := newFixture(t)

	body := map[string]interface{}{
		"username":     "NewStreamer",
		"accessToken":  "acc",
		"refreshToken": "ref",
		"expiresIn":    3600,
	}
	w := f.do(t, http.MethodPost, "/auth/twitch/bind", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("bind status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token  string        `json:"token"`
		Tenant models.Tenant `json:"tenant"`
	}
	decode(t, w, &resp)
	if resp.Token == "" {
		t.Fatal("no token issued")
	}
	if resp.Tenant.Username != "newstreamer" {
		t.Errorf("username = %q, want lowercased", resp.Tenant.Username)
	}
	if resp.Tenant.Role != models.RoleStreamer {
		t.Errorf("role = %q", resp.Tenant.Role)
	}

	claims, err := auth.ValidateJWT(resp.Token, testSecret)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if claims.TenantID != resp.Tenant.TenantID {
		t.Errorf("token tenant = %q, want %q", claims.TenantID, resp.Tenant.TenantID)
	}

	creds, err := f.repo.GetCredentials(context.Background(), resp.Tenant.TenantID)
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds.AccessToken != "acc" || creds.Revoked {
		t.Errorf("stored creds = %+v", creds)
	}
}

func TestBindRejectsIncompleteRequest(t *testing.T) {
	f := newFixture(t)

	body := map[string]interface{}{"username": "x", "accessToken": "acc", "expiresIn": 3600}
	if w := f.do(t, http.MethodPost, "/auth/twitch/bind", "", body); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestBindRebindClearsRevocation(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))
	creds := testutil.NewCredentials("t1")
	creds.Revoked = true
	if err := f.repo.PutCredentials(context.Background(), creds); err != nil {
		t.Fatalf("PutCredentials: %v", err)
	}

	body := map[string]interface{}{
		"tenantId":     "t1",
		"username":     "streamer_t1",
		"accessToken":  "fresh",
		"refreshToken": "fresh-ref",
		"expiresIn":    3600,
	}
	if w := f.do(t, http.MethodPost, "/auth/twitch/bind", "", body); w.Code != http.StatusOK {
		t.Fatalf("bind status = %d", w.Code)
	}
	got, err := f.repo.GetCredentials(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if got.Revoked {
		t.Error("rebind left credentials revoked")
	}
}

func TestIssueTokenGuardedByServiceToken(t *testing.T) {
	f := newFixture(t, testutil.NewTenant("t1"))

	body := map[string]string{"tenantId": "t1"}
	if w := f.do(t, http.MethodPost, "/auth/token", "", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/auth/token", "wrong", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", w.Code)
	}
	w := f.do(t, http.MethodPost, "/auth/token", testServiceToken, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	if resp.Token == "" {
		t.Error("no token issued")
	}
}

func TestAdminEndpoints(t *testing.T) {
	admin := testutil.NewTenant("boss")
	admin.Role = models.RoleAdmin
	f := newFixture(t, admin, testutil.NewTenant("t1"))

	streamerTok := token(t, "t1", models.RoleStreamer)
	adminTok := token(t, "boss", models.RoleAdmin)

	if w := f.do(t, http.MethodGet, "/api/admin/users", streamerTok, nil); w.Code != http.StatusForbidden {
		t.Fatalf("streamer list status = %d, want 403", w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/admin/users", adminTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin list status = %d", w.Code)
	}
	var list struct {
		Users []models.Tenant `json:"users"`
	}
	decode(t, w, &list)
	if len(list.Users) != 2 {
		t.Errorf("user count = %d, want 2", len(list.Users))
	}

	if w := f.do(t, http.MethodDelete, "/api/admin/users/boss", adminTok, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("delete admin status = %d, want 400", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/admin/users/t1", adminTok, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/stream/status", streamerTok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("deleted tenant status = %d, want 404", w.Code)
	}
}

func TestManagedTenantAccess(t *testing.T) {
	mod := testutil.NewTenant("mod1")
	mod.ManagedTenants = []string{"t1"}
	f := newFixture(t, mod, testutil.NewTenant("t1"))
	modTok := token(t, "mod1", models.RoleStreamer)

	w := f.do(t, http.MethodPost, "/api/counters/deaths/increment?tenantId=t1", modTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("managed increment status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Counters models.Counters `json:"counters"`
	}
	decode(t, w, &resp)
	if resp.Counters.TenantID != "t1" {
		t.Errorf("mutated tenant = %q, want t1", resp.Counters.TenantID)
	}

	if w := f.do(t, http.MethodPost, "/api/counters/deaths/increment?tenantId=mod1", modTok, nil); w.Code != http.StatusOK {
		t.Fatalf("own increment status = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/counters/deaths/increment?tenantId=other", modTok, nil); w.Code != http.StatusForbidden {
		t.Fatalf("unmanaged increment status = %d, want 403", w.Code)
	}
}
