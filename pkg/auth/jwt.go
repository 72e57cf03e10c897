package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidJWT      = errors.New("invalid JWT token")
	ErrExpiredJWT      = errors.New("JWT token expired")
	ErrUnauthenticated = errors.New("authentication required")
)

// DefaultTokenTTL is the lifetime of subscriber bearer tokens. Dashboards
// re-issue through /auth/token; overlay browser sources connect anonymously
// and never hold a token.
const DefaultTokenTTL = 24 * time.Hour

// Claims carries the tenant context inside a bearer token.
type Claims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Login    string `json:"login"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWT signs a subscriber bearer token with HS256.
func GenerateJWT(userID, tenantID, login, role string, secret []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:   userID,
		TenantID: tenantID,
		Login:    login,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(secret)
}

// ValidateJWT parses and verifies a bearer token. Only HS256 is accepted;
// tokens signed with any other algorithm fail closed.
func ValidateJWT(tokenString string, secret []byte) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredJWT
	case err != nil, !token.Valid:
		return nil, ErrInvalidJWT
	}
	return &claims, nil
}
