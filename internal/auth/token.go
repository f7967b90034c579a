// Package auth issues and validates identity tokens and runs the OTP login flow.
package auth

import (
	"time"

	"Guardian/internal/models"
	"Guardian/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 24 * time.Hour

// Identity is the authenticated caller carried by a token.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// IsOfficer reports whether the identity may act as a responder.
func (i Identity) IsOfficer() bool {
	return i.Role == models.RoleOfficer || i.Role == models.RoleAdmin
}

// Claims are the signed token claims. Subject holds the identity id.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs HS256 tokens with a shared secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenService)

func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService fails when secret is empty. A non-positive ttl means DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, errors.Validation("JWT secret is required but was empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL is the lifetime of an issued token.
func (s *TokenService) TTL() time.Duration { return s.ttl }

func (s *TokenService) IssueToken(id Identity) (string, error) {
	if id.ID == "" {
		return "", errors.Validation("identity id is required")
	}
	now := s.now()
	claims := &Claims{
		Name: id.Name,
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm and lifetime. Every failure is
// Unauthorized.
func (s *TokenService) ValidateToken(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, errors.Unauthorized("missing token")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, errors.WrapCode(err, errors.CodeUnauthorized, "token expired")
		}
		return Identity{}, errors.WrapCode(err, errors.CodeUnauthorized, "invalid token")
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, errors.Unauthorized("invalid token claims")
	}
	return Identity{ID: claims.Subject, Name: claims.Name, Role: claims.Role}, nil
}
