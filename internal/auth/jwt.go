// Package auth holds the building blocks of authentication: password
// hashing, signed session tokens, and the HTTP middleware that gates
// protected routes.
//
// SESSION FLOW OVERVIEW:
//  1. Client registers (POST /users) or logs in (POST /users/login)
//  2. Server signs a token {sub: userID, kind: "access"} and appends it to
//     the user's token list in the store
//  3. Server returns the token in the X-Auth response header
//  4. Client sends X-Auth on every protected request; the middleware checks
//     the signature AND that the token is still in the user's list
//  5. Logout (DELETE /users/me/token) removes the token from the list, so
//     the same string is rejected from then on
//
// WHY BOTH A SIGNATURE AND A STORED LIST?
// The signature proves the server minted the token and nobody edited it.
// The list is what makes revocation possible: a plain JWT stays valid until
// it expires, and an allow-list lets logout take effect immediately.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is written into every token and required on parse.
const Issuer = "tasklist"

// MinSecretLength is the shortest HMAC secret NewTokenService accepts.
const MinSecretLength = 16

// TokenService signs and parses session tokens with a process-wide HMAC
// secret. The secret is read once from config and never changes while the
// process runs.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. A ttl of zero issues tokens with
// no exp claim; such tokens stay valid until removed from the user's list.
//
// Example secret: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	if ttl < 0 {
		return nil, errors.New("auth: token TTL must not be negative")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Claims is the token payload.
//
// Subject ("sub") carries the user ID. ID ("jti") is a random UUID so two
// tokens for the same user issued in the same second are still distinct
// strings; iat alone only has one-second resolution.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Sign creates and signs a token for userID with the given kind (HS256).
func (s *TokenService) Sign(userID, kind string) (string, error) {
	if userID == "" || kind == "" {
		return "", errors.New("auth: user ID and kind are required")
	}

	now := time.Now()
	c := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   Issuer,
		},
	}
	if s.ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and decodes the payload.
//
// VALIDATION CHECKS:
//   - signature matches the secret
//   - algorithm is HS256 (jwt.WithValidMethods blocks "none" and
//     algorithm-confusion tricks)
//   - issuer is "tasklist"
//   - exp, when present, is in the future
//   - sub and kind are non-empty
//
// Parse says nothing about revocation. That needs the store, see
// service.TokenManager.VerifyToken.
func (s *TokenService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}
	if c.Kind == "" {
		return nil, errors.New("auth: token has no kind")
	}

	return c, nil
}
