package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newMiniredisClient(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client
}

func TestTracker_StoresAgree(t *testing.T) {
	stores := map[string]func(t *testing.T) *Tracker{
		"memory": func(t *testing.T) *Tracker {
			return NewTracker(nil, zerolog.Nop())
		},
		"redis": func(t *testing.T) *Tracker {
			return NewTracker(newMiniredisClient(t), zerolog.Nop())
		},
	}

	for name, newTracker := range stores {
		t.Run(name, func(t *testing.T) {
			tracker := newTracker(t)
			now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			tracker.now = func() time.Time { return now }
			ctx := context.Background()

			state, err := tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if state.Active(now) {
				t.Error("empty state should not be active")
			}

			if err := tracker.RecordThrottle(ctx, 5*time.Second); err != nil {
				t.Fatalf("RecordThrottle() error = %v", err)
			}
			// A shorter back-off must not shorten the recorded deadline.
			if err := tracker.RecordThrottle(ctx, 2*time.Second); err != nil {
				t.Fatalf("RecordThrottle() error = %v", err)
			}

			state, err = tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}

			if got := state.Remaining(now); got != 5*time.Second {
				t.Errorf("Remaining() = %v, want 5s", got)
			}
			if state.Throttles != 2 {
				t.Errorf("Throttles = %d, want 2", state.Throttles)
			}
			if !state.LastThrottle.Equal(now) {
				t.Errorf("LastThrottle = %v, want %v", state.LastThrottle, now)
			}
		})
	}
}

func TestTracker_WaitReturnsImmediatelyWhenIdle(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())

	start := time.Now()
	if err := tracker.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Wait() took %v on an idle tracker", elapsed)
	}
}

func TestTracker_WaitHoldsUntilDeadline(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())
	ctx := context.Background()

	if err := tracker.RecordThrottle(ctx, 150*time.Millisecond); err != nil {
		t.Fatalf("RecordThrottle() error = %v", err)
	}

	start := time.Now()
	if err := tracker.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Wait() returned after %v, expected to be held back", elapsed)
	}
}

func TestTracker_WaitRespectsContext(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())

	if err := tracker.RecordThrottle(context.Background(), time.Minute); err != nil {
		t.Fatalf("RecordThrottle() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tracker.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}

type failingStore struct{}

func (failingStore) Load(context.Context) (*ThrottleState, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Extend(context.Context, time.Time, time.Time) error {
	return errors.New("connection refused")
}

func TestTracker_StoreFailureDoesNotBlock(t *testing.T) {
	tracker := NewTrackerWithStore(failingStore{}, zerolog.Nop())

	if err := tracker.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v, want nil when the store is unavailable", err)
	}
	if err := tracker.RecordThrottle(context.Background(), time.Second); err == nil {
		t.Error("RecordThrottle() error = nil, want store error")
	}
}
