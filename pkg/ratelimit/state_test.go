package ratelimit

import (
	"testing"
	"time"
)

func TestThrottleState_Active(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		backoffUntil  time.Time
		wantActive    bool
		wantRemaining time.Duration
	}{
		{
			name:          "no throttle recorded",
			backoffUntil:  time.Time{},
			wantActive:    false,
			wantRemaining: 0,
		},
		{
			name:          "deadline in the future",
			backoffUntil:  now.Add(3 * time.Second),
			wantActive:    true,
			wantRemaining: 3 * time.Second,
		},
		{
			name:          "deadline passed",
			backoffUntil:  now.Add(-time.Second),
			wantActive:    false,
			wantRemaining: 0,
		},
		{
			name:          "deadline exactly now",
			backoffUntil:  now,
			wantActive:    false,
			wantRemaining: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &ThrottleState{BackoffUntil: tt.backoffUntil}

			if got := state.Active(now); got != tt.wantActive {
				t.Errorf("Active() = %v, want %v", got, tt.wantActive)
			}
			if got := state.Remaining(now); got != tt.wantRemaining {
				t.Errorf("Remaining() = %v, want %v", got, tt.wantRemaining)
			}
		})
	}
}
