package eventsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/KainCH/omniasylum-sub001/pkg/clients"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// DefaultHelixURL is the upstream REST API base.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// HelixClient creates and deletes EventSub subscriptions over REST.
type HelixClient struct {
	baseURL  string
	clientID string
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

// NewHelixClient builds a client for the given API base.
func NewHelixClient(baseURL, clientID string) *HelixClient {
	if baseURL == "" {
		baseURL = DefaultHelixURL
	}
	return &HelixClient{
		baseURL:  baseURL,
		clientID: clientID,
		client:   &http.Client{Timeout: 10 * time.Second, Transport: clients.DefaultTransport()},
		executor: clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
	}
}

type createSubscriptionRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport struct {
		Method    string `json:"method"`
		SessionID string `json:"session_id"`
	} `json:"transport"`
}

type createSubscriptionResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// CreateSubscription registers one websocket-transport subscription against
// the current session. A 409 means the subscription already exists and is
// treated as success; a 401 is returned as ErrUnauthorized for the caller's
// reactive-refresh path.
func (h *HelixClient) CreateSubscription(ctx context.Context, token string, sessionID string, sub models.EventSubSubscription) (models.EventSubSubscription, error) {
	reqBody := createSubscriptionRequest{
		Type:      sub.Type,
		Version:   sub.Version,
		Condition: sub.Condition,
	}
	reqBody.Transport.Method = "websocket"
	reqBody.Transport.SessionID = sessionID

	buf, err := json.Marshal(reqBody)
	if err != nil {
		return sub, err
	}

	resp, err := clients.ExecuteHTTP(ctx, h.executor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/eventsub/subscriptions", bytes.NewReader(buf))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Client-Id", h.clientID)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		return h.client.Do(req)
	})
	if err != nil {
		return sub, fmt.Errorf("%w: create subscription %s: %v", models.ErrUpstreamUnavailable, sub.Type, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK:
		var out createSubscriptionResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && len(out.Data) > 0 {
			sub.ID = out.Data[0].ID
			sub.Status = out.Data[0].Status
		} else {
			sub.Status = "enabled"
		}
		return sub, nil
	case resp.StatusCode == http.StatusConflict:
		// Already subscribed on this session.
		sub.Status = "enabled"
		return sub, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return sub, fmt.Errorf("%w: create subscription %s", models.ErrUnauthorized, sub.Type)
	default:
		return sub, fmt.Errorf("create subscription %s: status %d", sub.Type, resp.StatusCode)
	}
}

// SubscriptionCatalog returns the subscriptions a tenant's monitor session
// creates on a fresh welcome. The tenant id doubles as the upstream
// broadcaster id.
func SubscriptionCatalog(broadcasterID string) []models.EventSubSubscription {
	cond := map[string]string{"broadcaster_user_id": broadcasterID}
	return []models.EventSubSubscription{
		{Type: "stream.online", Version: "1", Condition: cond},
		{Type: "stream.offline", Version: "1", Condition: cond},
		{Type: "channel.follow", Version: "2", Condition: map[string]string{
			"broadcaster_user_id": broadcasterID,
			"moderator_user_id":   broadcasterID,
		}},
		{Type: "channel.subscribe", Version: "1", Condition: cond},
		{Type: "channel.subscription.gift", Version: "1", Condition: cond},
		{Type: "channel.subscription.message", Version: "1", Condition: cond},
		{Type: "channel.cheer", Version: "1", Condition: cond},
		{Type: "channel.raid", Version: "1", Condition: map[string]string{
			"to_broadcaster_user_id": broadcasterID,
		}},
		{Type: "channel.channel_points_custom_reward_redemption.add", Version: "1", Condition: cond},
	}
}
