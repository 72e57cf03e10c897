// Package tokens owns the per-tenant OAuth credential tuples. It is the only
// writer of credentials after bind: sessions ask it for access tokens and
// report upstream 401s back to it. Refreshes for one tenant are deduplicated,
// so a burst of expired-token callers produces a single upstream request.
package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/KainCH/omniasylum-sub001/internal/store"
	"github.com/KainCH/omniasylum-sub001/pkg/clients"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// DefaultTokenURL is the upstream OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// refreshWindow is how close to expiry a token may get before GetAccessToken
// refreshes it proactively.
const refreshWindow = time.Hour

const refreshTimeout = 10 * time.Second

// Config carries the upstream application identity.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Broker mediates access-token reads and refreshes.
type Broker struct {
	repo     *store.Repository
	cfg      Config
	client   *http.Client
	executor failsafe.Executor[*http.Response]
	logger   logging.Logger

	// refreshes counts refresh outcomes by result label. Optional.
	refreshes *prometheus.CounterVec

	sf singleflight.Group

	mu    sync.Mutex
	cache map[string]models.Credentials
}

// NewBroker creates a broker. refreshes may be nil.
func NewBroker(repo *store.Repository, cfg Config, logger logging.Logger, refreshes *prometheus.CounterVec) *Broker {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	return &Broker{
		repo:      repo,
		cfg:       cfg,
		client:    &http.Client{Timeout: refreshTimeout, Transport: clients.DefaultTransport()},
		executor:  clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
		logger:    logger,
		refreshes: refreshes,
		cache:     make(map[string]models.Credentials),
	}
}

// GetAccessToken returns a valid access token for the tenant, refreshing
// proactively when the token expires within the refresh window.
func (b *Broker) GetAccessToken(ctx context.Context, tenantID string) (string, error) {
	creds, err := b.credentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if creds.Revoked {
		return "", fmt.Errorf("%w: tenant %s", models.ErrAuthRevoked, tenantID)
	}
	if !creds.ExpiresWithin(refreshWindow, time.Now()) {
		return creds.AccessToken, nil
	}

	refreshed, err := b.refresh(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// OnReactiveUnauthorized handles an upstream 401 observed by a session: the
// cache entry is dropped and one forced refresh is attempted. A refresh
// failure here marks the credentials revoked.
func (b *Broker) OnReactiveUnauthorized(ctx context.Context, tenantID string) (string, error) {
	b.Invalidate(tenantID)
	creds, err := b.refresh(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return creds.AccessToken, nil
}

// Bind stores a fresh credential tuple, clearing any revoked state.
func (b *Broker) Bind(ctx context.Context, creds models.Credentials) error {
	creds.Revoked = false
	if err := b.repo.PutCredentials(ctx, creds); err != nil {
		return err
	}
	b.mu.Lock()
	b.cache[creds.TenantID] = creds
	b.mu.Unlock()
	b.logger.WithField("tenant_id", creds.TenantID).Info("Credentials bound")
	return nil
}

// MarkRevoked flags the tenant's credentials as revoked. Used when a session
// observes a second 401 after a forced refresh.
func (b *Broker) MarkRevoked(ctx context.Context, tenantID string) {
	creds, err := b.repo.GetCredentials(ctx, tenantID)
	if err != nil {
		b.Invalidate(tenantID)
		return
	}
	b.markRevoked(ctx, creds)
}

// Invalidate drops the in-memory cache entry for a tenant.
func (b *Broker) Invalidate(tenantID string) {
	b.mu.Lock()
	delete(b.cache, tenantID)
	b.mu.Unlock()
}

func (b *Broker) credentials(ctx context.Context, tenantID string) (models.Credentials, error) {
	b.mu.Lock()
	creds, ok := b.cache[tenantID]
	b.mu.Unlock()
	if ok {
		return creds, nil
	}

	creds, err := b.repo.GetCredentials(ctx, tenantID)
	if err != nil {
		return models.Credentials{}, err
	}
	b.mu.Lock()
	b.cache[tenantID] = creds
	b.mu.Unlock()
	return creds, nil
}

// refresh exchanges the refresh token for a new tuple. Concurrent callers for
// the same tenant share one upstream request.
func (b *Broker) refresh(ctx context.Context, tenantID string) (models.Credentials, error) {
	v, err, _ := b.sf.Do(tenantID, func() (interface{}, error) {
		return b.doRefresh(ctx, tenantID)
	})
	if err != nil {
		return models.Credentials{}, err
	}
	return v.(models.Credentials), nil
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	Scope        []string `json:"scope"`
}

func (b *Broker) doRefresh(ctx context.Context, tenantID string) (models.Credentials, error) {
	creds, err := b.repo.GetCredentials(ctx, tenantID)
	if err != nil {
		return models.Credentials{}, err
	}
	if creds.Revoked {
		return models.Credentials{}, fmt.Errorf("%w: tenant %s", models.ErrAuthRevoked, tenantID)
	}

	form := url.Values{
		"client_id":     {b.cfg.ClientID},
		"client_secret": {b.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {creds.RefreshToken},
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	resp, err := clients.ExecuteHTTP(ctx, b.executor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.TokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return b.client.Do(req)
	})
	if err != nil {
		b.countRefresh("error")
		return models.Credentials{}, fmt.Errorf("%w: token refresh for %s: %v", models.ErrUpstreamUnavailable, tenantID, err)
	}
	defer resp.Body.Close()

	// The identity provider answers 400 or 401 when the refresh token itself
	// is dead. That is a revocation, not a transient failure.
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		b.countRefresh("revoked")
		b.markRevoked(ctx, creds)
		return models.Credentials{}, fmt.Errorf("%w: refresh rejected with status %d for %s", models.ErrAuthRevoked, resp.StatusCode, tenantID)
	}
	if resp.StatusCode != http.StatusOK {
		b.countRefresh("error")
		return models.Credentials{}, fmt.Errorf("%w: token endpoint status %d for %s", models.ErrRefreshFailed, resp.StatusCode, tenantID)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		b.countRefresh("error")
		return models.Credentials{}, fmt.Errorf("%w: decode token response for %s: %v", models.ErrRefreshFailed, tenantID, err)
	}

	refreshed := models.Credentials{
		TenantID:     tenantID,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		Scopes:       tr.Scope,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}
	if err := b.repo.PutCredentials(ctx, refreshed); err != nil {
		b.countRefresh("error")
		return models.Credentials{}, err
	}

	b.mu.Lock()
	b.cache[tenantID] = refreshed
	b.mu.Unlock()

	b.countRefresh("success")
	b.logger.WithFields(logging.Fields{
		"tenant_id":  tenantID,
		"expires_at": refreshed.ExpiresAt,
	}).Info("Access token refreshed")
	return refreshed, nil
}

func (b *Broker) markRevoked(ctx context.Context, creds models.Credentials) {
	creds.Revoked = true
	if err := b.repo.PutCredentials(ctx, creds); err != nil {
		b.logger.WithError(err).WithField("tenant_id", creds.TenantID).Error("Failed to persist revoked state")
	}
	b.mu.Lock()
	creds.Revoked = true
	b.cache[creds.TenantID] = creds
	b.mu.Unlock()
}

func (b *Broker) countRefresh(result string) {
	if b.refreshes != nil {
		b.refreshes.WithLabelValues(result).Inc()
	}
}
