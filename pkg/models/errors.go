package models

import "errors"

// Sentinel errors shared across the service. Components return these (wrapped
// with context via fmt.Errorf %w) and the HTTP layer is the only place that
// translates them into status codes.
var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned on schema or range violations.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when a caller lacks valid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAuthRevoked is returned when upstream credentials are revoked;
	// terminal for a tenant's sessions until tokens are re-bound.
	ErrAuthRevoked = errors.New("upstream credentials revoked")

	// ErrNoCredentials is returned when a tenant has no stored credential tuple.
	ErrNoCredentials = errors.New("no credentials bound")

	// ErrRefreshFailed is returned when a token refresh attempt fails.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrInvalidTransition is returned for illegal lifecycle transitions.
	ErrInvalidTransition = errors.New("invalid stream state transition")

	// ErrFeatureDisabled is returned when the tenant lacks a required feature.
	ErrFeatureDisabled = errors.New("feature disabled for tenant")

	// ErrConflict is returned on attempts to modify read-only defaults.
	ErrConflict = errors.New("conflict")

	// ErrUpstreamUnavailable marks transient upstream failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
