// Package token issues and validates signed, time-limited access tokens.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/notes-service/internal/errs"
)

// Service signs and verifies HS256 JWTs. Stateless: a token is valid iff its
// signature verifies against the process-wide key and its expiry has not
// passed. Rotating the key invalidates all outstanding tokens.
type Service struct {
	key []byte
	ttl time.Duration
}

// New constructs a token service with the signing key and access token TTL.
func New(key []byte, ttl time.Duration) *Service {
	return &Service{key: key, ttl: ttl}
}

// Issue creates a signed token with the given subject and expiry now+TTL.
func (s *Service) Issue(subject string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.key)
	return signed, exp, err
}

// Validate checks signature, expiry and shape, returning the token subject.
// Any failure maps to errs.ErrInvalidToken; callers must not learn why.
func (s *Service) Validate(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.ErrInvalidToken
		}
		return s.key, nil
	})
	if err != nil || !tok.Valid || claims.Subject == "" {
		return "", errs.ErrInvalidToken
	}
	return claims.Subject, nil
}
