package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	tokenRefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_token_refreshes_total",
		Help: "Total number of successful credential acquisitions",
	})

	tokenRefreshFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_token_refresh_failures_total",
		Help: "Total number of failed credential acquisitions",
	})
)

// Manager caches a credential and refreshes it before it expires.
// It is safe for concurrent use; concurrent refreshes collapse into one
// acquisition.
type Manager struct {
	source Source
	margin time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu    sync.RWMutex
	cred  Credential
	group singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithSafetyMargin overrides DefaultSafetyMargin.
func WithSafetyMargin(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.margin = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the manager's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a manager that acquires credentials from source on demand.
func NewManager(source Source, opts ...Option) *Manager {
	m := &Manager{
		source: source,
		margin: DefaultSafetyMargin,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "token-manager").Logger()
	return m
}

// EnsureValid returns a credential that is not within the safety margin of
// expiry, acquiring a new one only when needed.
//
// The acquisition is shared by every concurrent caller and is not cancelled
// with ctx. A caller whose ctx ends while waiting gets ctx.Err(); the
// acquisition still completes for the others.
func (m *Manager) EnsureValid(ctx context.Context) (Credential, error) {
	if cred, ok := m.cached(); ok {
		m.logger.Trace().Time("expires_on", cred.ExpiresOn).Msg("Credential cache hit")
		return cred, nil
	}

	acquireCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("refresh", func() (any, error) {
		// Another caller may have refreshed while we waited on the group.
		if cred, ok := m.cached(); ok {
			return cred, nil
		}
		return m.refresh(acquireCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
}

func (m *Manager) cached() (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred, !m.cred.ExpiresWithin(m.margin, m.now())
}

func (m *Manager) refresh(ctx context.Context) (Credential, error) {
	start := time.Now()

	cred, err := m.source.Acquire(ctx)
	if err == nil && cred.AccessToken == "" {
		err = fmt.Errorf("credential source returned an empty token")
	}
	if err != nil {
		tokenRefreshFailuresTotal.Inc()
		m.logger.Error().Err(err).Msg("Credential acquisition failed")
		return Credential{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	tokenRefreshesTotal.Inc()
	m.logger.Info().
		Time("expires_on", cred.ExpiresOn).
		Dur("duration", time.Since(start)).
		Msg("Credential refreshed")

	return cred, nil
}
