// Package auth acquires and refreshes the bearer credential used for Graph
// API requests.
package auth

import (
	"context"
	"errors"
	"time"
)

// DefaultSafetyMargin is how long before expiry a credential is refreshed.
const DefaultSafetyMargin = 10 * time.Minute

// ErrAuthentication wraps every credential acquisition failure.
// It is fatal: no request can succeed without a credential.
var ErrAuthentication = errors.New("authentication failed")

// Credential is an opaque bearer token and its expiry.
type Credential struct {
	AccessToken string
	ExpiresOn   time.Time
}

// ExpiresWithin reports whether the credential is absent or expires within
// margin of now.
func (c Credential) ExpiresWithin(margin time.Duration, now time.Time) bool {
	if c.AccessToken == "" {
		return true
	}
	return c.ExpiresOn.Sub(now) < margin
}

// Source performs one network round trip to obtain a fresh credential.
type Source interface {
	Acquire(ctx context.Context) (Credential, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Credential, error)

// Acquire implements Source.
func (f SourceFunc) Acquire(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// StaticSource always returns the same token, valid for TTL from the time of
// each acquisition. Useful for pre-issued tokens and tests.
type StaticSource struct {
	Token string
	TTL   time.Duration
}

// Acquire implements Source.
func (s StaticSource) Acquire(context.Context) (Credential, error) {
	if s.Token == "" {
		return Credential{}, errors.New("static token is empty")
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return Credential{AccessToken: s.Token, ExpiresOn: time.Now().Add(ttl)}, nil
}
