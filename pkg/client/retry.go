package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	graphRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_retries_total",
		Help: "Total number of requests reissued after throttling",
	})

	graphRetryWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "graph_retry_wait_seconds",
		Help:    "Time slept before reissuing a throttled request",
		Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30, 60},
	})

	graphRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graph_retry_exhausted_total",
		Help: "Total number of requests still throttled after the maximum number of attempts",
	})
)

// RetryConfig holds the configuration for throttling retries.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// WaitMin and WaitMax bound the randomized wait used when a 429 carries
	// no Retry-After header. Randomizing keeps workers throttled at the same
	// moment from retrying in lockstep.
	WaitMin time.Duration
	WaitMax time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		WaitMin:     3 * time.Second,
		WaitMax:     5 * time.Second,
	}
}

// Operation is one attempt of a request.
type Operation func(ctx context.Context) Outcome

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier reissues throttled operations.
type Retrier struct {
	maxAttempts int
	sleep       Sleeper
	logger      zerolog.Logger
}

// NewRetrier creates a retrier allowing maxAttempts attempts per operation.
// A nil sleeper defaults to SleepContext.
func NewRetrier(maxAttempts int, sleep Sleeper, logger zerolog.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if sleep == nil {
		sleep = SleepContext
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		sleep:       sleep,
		logger:      logger,
	}
}

// Do runs op until it succeeds, fails fatally or has been throttled
// maxAttempts times. Each throttled attempt except the last is followed by a
// sleep of exactly the wait it signaled.
func (r *Retrier) Do(ctx context.Context, op Operation) (*Response, error) {
	var last Outcome

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		last = op(ctx)

		switch last.Kind {
		case OutcomeOK:
			if attempt > 1 {
				r.logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return last.Response, nil

		case OutcomeFatal:
			return nil, last.Err
		}

		if attempt == r.maxAttempts {
			break
		}

		graphRetriesTotal.Inc()
		graphRetryWaitSeconds.Observe(last.Wait.Seconds())

		r.logger.Debug().
			Int("attempt", attempt).
			Dur("wait", last.Wait).
			Msg("Retrying request after throttling")

		if err := r.sleep(ctx, last.Wait); err != nil {
			r.logger.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry wait")
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	graphRetryExhaustedTotal.Inc()
	r.logger.Error().
		Int("max_attempts", r.maxAttempts).
		Msg("Retry attempts exhausted")

	if resp := last.Response; resp != nil {
		return nil, fmt.Errorf("%w (%d): %s %d %s",
			ErrRetryExhausted, r.maxAttempts, resp.Method, resp.StatusCode, resp.URL)
	}
	return nil, fmt.Errorf("%w (%d)", ErrRetryExhausted, r.maxAttempts)
}

// WithRetry composes op with r.
func WithRetry(r *Retrier, op Operation) func(ctx context.Context) (*Response, error) {
	return func(ctx context.Context) (*Response, error) {
		return r.Do(ctx, op)
	}
}
