package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KainCH/omniasylum-sub001/pkg/auth"
)

// JWTTestHelper provides utilities for JWT testing
type JWTTestHelper struct {
	Secret []byte
}

// NewJWTTestHelper creates a new JWT test helper with a default test secret
func NewJWTTestHelper() *JWTTestHelper {
	return &JWTTestHelper{
		Secret: []byte("test-secret-for-unit-tests"),
	}
}

// GenerateValidJWT generates a valid subscriber token for testing
func (h *JWTTestHelper) GenerateValidJWT(userID, tenantID, login, role string) (string, error) {
	return auth.GenerateJWT(userID, tenantID, login, role, h.Secret, time.Hour)
}

// GenerateExpiredJWT generates an expired token for testing
func (h *JWTTestHelper) GenerateExpiredJWT(userID, tenantID, login, role string) (string, error) {
	claims := &auth.Claims{
		UserID:   userID,
		TenantID: tenantID,
		Login:    login,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.Secret)
}
