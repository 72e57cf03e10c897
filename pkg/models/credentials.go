package models

import "time"

// Credentials is the upstream OAuth tuple for one tenant. The token broker is
// the sole mutator; sessions read through it. Access and refresh tokens are
// encrypted at rest by the store layer.
type Credentials struct {
	TenantID     string    `json:"tenantId"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Scopes       []string  `json:"scopes,omitempty"`
	Revoked      bool      `json:"revoked"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ExpiresWithin reports whether the access token expires inside the window.
func (c *Credentials) ExpiresWithin(window time.Duration, now time.Time) bool {
	return c.ExpiresAt.Sub(now) < window
}
