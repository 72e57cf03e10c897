package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/KainCH/omniasylum-sub001/internal/chat"
	"github.com/KainCH/omniasylum-sub001/internal/counters"
	"github.com/KainCH/omniasylum-sub001/internal/dispatch"
	"github.com/KainCH/omniasylum-sub001/internal/eventsub"
	"github.com/KainCH/omniasylum-sub001/internal/handlers"
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

// End-to-end tests over the fully wired service: HTTP API, room websocket,
// counter engine, lifecycle controller and dispatcher all running against a
// MemStore, with session endpoints pointed at unreachable addresses.

var jwtSecret = []byte("integration-test-secret")

const serviceToken = "integration-service-token"

type stack struct {
	server     *httptest.Server
	repo       *store.Repository
	dispatcher *dispatch.Dispatcher
	sup        *supervisor.Supervisor
}

func newStack(t *testing.T, tenants ...models.Tenant) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.NewLogger()

	repo := store.NewRepository(store.NewMemStore(), nil)
	for _, tn := range tenants {
		require.NoError(t, repo.PutTenant(context.Background(), tn))
		require.NoError(t, repo.PutCredentials(context.Background(), testutil.NewCredentials(tn.TenantID)))
	}

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
	hub := rooms.NewHub(repo, d, sup, jwtSecret, logger)
	d.SetHub(hub)
	sup.SetBroadcaster(hub)
	sup.SetSink(d)

	lc := lifecycle.NewController(repo, d, sup, logger)
	webhook := dispatch.NewWebhookSender(0, logger)

	h := handlers.New(repo, d, lc, sup, broker, hub, webhook, handlers.Config{
		JWTSecret:    jwtSecret,
		ServiceToken: serviceToken,
	}, logger)

	router := gin.New()
	h.Register(router)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	go d.Run(ctx)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		sup.StopAll()
		cancel()
	})
	return &stack{server: server, repo: repo, dispatcher: d, sup: sup}
}

func bearerToken(t *testing.T, tenantID string) string {
	t.Helper()
	tok, err := auth.GenerateJWT(tenantID, tenantID, "streamer_"+tenantID, models.RoleStreamer, jwtSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *stack) do(t *testing.T, method, path, bearer string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// wsClient is a room subscriber speaking the overlay protocol.
type wsClient struct {
	conn *websocket.Conn
}

func (s *stack) dialWS(t *testing.T, bearer string) *wsClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	if bearer != "" {
		wsURL += "?token=" + bearer
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{conn: conn}
}

func (c *wsClient) send(t *testing.T, msgType string, data interface{}) {
	t.Helper()
	require.NoError(t, c.conn.WriteJSON(map[string]interface{}{"type": msgType, "data": data}))
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil consumes messages until one of the wanted type arrives, skipping
// everything else. Fails the test after the deadline.
func (c *wsClient) readUntil(t *testing.T, msgType string, timeout time.Duration) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(timeout)
	require.NoError(t, c.conn.SetReadDeadline(deadline))
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %q: %v", msgType, err)
		}
		if env.Type == msgType {
			return env.Data
		}
	}
}

func unmarshalInto(t *testing.T, raw json.RawMessage, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, out))
}
