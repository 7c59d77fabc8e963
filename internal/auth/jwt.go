// Package auth provides the OAuth provider flows, JWT session tokens, and
// the authentication middleware.
//
// AUTHENTICATION FLOW:
//  1. User visits /auth/{provider}/login → redirected to the provider
//  2. Provider calls back /auth/{provider}/callback with a code
//  3. Server exchanges the code for a Profile, resolves it to an Account
//  4. Server issues a JWT access token, stored in an HttpOnly cookie
//  5. On subsequent API calls, middleware reads the cookie, validates the
//     JWT, and sets the accountID in the request context
//
// The JWT is stateless — the account ID and expiry live inside the signed
// token, so validation needs no DB lookup, only the HMAC secret.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService handles JWT creation and validation. It holds the HMAC secret
// used to sign and verify tokens; the same secret serves both operations.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: SESSION_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the JWT payload. The registered "sub" claim carries the account
// ID as its decimal string form.
type claims struct {
	jwt.RegisteredClaims
}

const tokenLifetime = 24 * time.Hour

// Generate creates and signs a new JWT access token for the given account.
//
// Signing algorithm: HS256 (HMAC-SHA256) — symmetric, same key signs and
// verifies, which fits a single-service deployment.
func (s *TokenService) Generate(accountID int64) (string, error) {
	return s.GenerateWithDuration(accountID, tokenLifetime)
}

// GenerateWithDuration creates a token with a custom expiry. Used in tests
// and for short-lived tokens.
func (s *TokenService) GenerateWithDuration(accountID int64, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    "devboard",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the account ID from
// the "sub" claim. Fails if the token is expired, tampered, signed with a
// different key, or uses an unexpected algorithm.
func (s *TokenService) Validate(tokenStr string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (any, error) {
		// Reject tokens that claim a different signing method. Without this
		// check an attacker could present an "alg":"none" token.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("auth: invalid token claims")
	}

	accountID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || accountID <= 0 {
		return 0, fmt.Errorf("auth: token has an invalid subject")
	}

	return accountID, nil
}
