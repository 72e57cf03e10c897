// Package clients holds the shared outbound HTTP plumbing: a bounded
// transport and a failsafe executor that layers retry with backoff and an
// optional circuit breaker around upstream API calls.
package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// DefaultShouldRetry retries network errors, 5xx responses and 429. Auth
// failures are not retried; token refresh is a separate concern and retrying
// a 401 with the same credential only burns the rate limit.
func DefaultShouldRetry(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	}
	return false
}

// BreakerConfig enables a circuit breaker in front of the retry policy.
type BreakerConfig struct {
	// FailureThreshold of Window recent calls trips the breaker.
	FailureThreshold uint
	Window           uint
	// OpenFor is how long the breaker rejects calls before probing again.
	OpenFor time.Duration
}

// HTTPExecutorConfig tunes the retry policy and optional breaker.
type HTTPExecutorConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Breaker, when non-nil, layers a circuit breaker outside the retries.
	Breaker *BreakerConfig

	// ShouldRetry decides per attempt; nil means DefaultShouldRetry.
	ShouldRetry func(resp *http.Response, err error) bool
}

// DefaultHTTPExecutorConfig is the standard upstream-API profile.
func DefaultHTTPExecutorConfig() HTTPExecutorConfig {
	return HTTPExecutorConfig{
		MaxRetries:  3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		ShouldRetry: DefaultShouldRetry,
	}
}

func normalize(cfg HTTPExecutorConfig) HTTPExecutorConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = DefaultShouldRetry
	}
	return cfg
}

// NewHTTPRetryPolicy builds the jittered-backoff retry policy alone.
//
//nolint:bodyclose // [*http.Response] is a type parameter, no body is opened here
func NewHTTPRetryPolicy(cfg HTTPExecutorConfig) retrypolicy.RetryPolicy[*http.Response] {
	cfg = normalize(cfg)
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			return cfg.ShouldRetry(resp, err)
		}).
		Build()
}

// NewHTTPExecutor composes the retry policy with the optional breaker. The
// breaker counts the final outcome of each retried call, not every attempt.
//
//nolint:bodyclose // [*http.Response] is a type parameter, no body is opened here
func NewHTTPExecutor(cfg HTTPExecutorConfig) failsafe.Executor[*http.Response] {
	retry := NewHTTPRetryPolicy(cfg)
	if cfg.Breaker == nil {
		return failsafe.With(retry)
	}

	b := *cfg.Breaker
	if b.Window == 0 {
		b.Window = 10
	}
	if b.FailureThreshold == 0 {
		b.FailureThreshold = b.Window / 2
	}
	if b.OpenFor == 0 {
		b.OpenFor = 15 * time.Second
	}
	breaker := circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(b.FailureThreshold, b.Window).
		WithDelay(b.OpenFor).
		WithSuccessThreshold(1).
		HandleIf(func(resp *http.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode >= 500)
		}).
		Build()

	return failsafe.With(retry, breaker)
}

// ExecuteHTTP runs one request function under the executor with ctx
// controlling cancellation across attempts.
func ExecuteHTTP(ctx context.Context, executor failsafe.Executor[*http.Response], fn func() (*http.Response, error)) (*http.Response, error) {
	return executor.WithContext(ctx).Get(fn)
}
