package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	throttleRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_throttle_recorded_total",
		Help: "Total number of 429 responses recorded in the shared throttle state",
	})

	throttleGateWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_throttle_gate_waits_total",
		Help: "Total number of requests held back by the shared throttle gate",
	})

	throttleGateWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "graph_throttle_gate_wait_seconds",
		Help:    "Time requests spent held back by the shared throttle gate",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Tracker gates requests on shared throttle state.
type Tracker struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker backed by Redis, or by process memory when
// redisClient is nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	var store Store
	if redisClient != nil {
		store = NewRedisStore(redisClient)
	} else {
		store = NewMemoryStore()
	}
	return NewTrackerWithStore(store, logger)
}

// NewTrackerWithStore creates a tracker on an explicit store.
func NewTrackerWithStore(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetState retrieves the current throttle state.
func (t *Tracker) GetState(ctx context.Context) (*ThrottleState, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load throttle state: %w", err)
	}
	return state, nil
}

// RecordThrottle announces that the server asked for wait of back-off.
func (t *Tracker) RecordThrottle(ctx context.Context, wait time.Duration) error {
	now := t.now()
	if err := t.store.Extend(ctx, now.Add(wait), now); err != nil {
		return err
	}

	throttleRecordedTotal.Inc()
	t.logger.Debug().
		Dur("wait", wait).
		Time("backoff_until", now.Add(wait)).
		Msg("Throttle recorded")

	return nil
}

// Wait blocks until the shared back-off deadline has passed or ctx is done.
// A store failure is logged and the request is let through: the per-request
// retry still protects against the server's throttling.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Throttle state unavailable, not gating request")
		return nil
	}

	remaining := state.Remaining(t.now())
	if remaining <= 0 {
		return nil
	}

	throttleGateWaitsTotal.Inc()
	throttleGateWaitSeconds.Observe(remaining.Seconds())
	t.logger.Info().
		Dur("wait", remaining).
		Int64("throttles", state.Throttles).
		Msg("Holding request back, tenant is throttled")

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
