// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracker_Defaults(t *testing.T) {
	tr := NewTracker(0, WithClock(newFakeClock()))
	assert.Equal(t, DefaultIdleThreshold, tr.threshold)
	assert.True(t, strings.HasPrefix(tr.SessionID(), "sess_20250301_"))
}

func TestTracker_IdleAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(500*time.Millisecond, WithClock(clock))

	assert.False(t, tr.IsIdle())
	clock.Advance(500 * time.Millisecond)
	assert.True(t, tr.IsIdle())

	tr.RecordActivity()
	assert.False(t, tr.IsIdle())
	assert.Equal(t, time.Duration(0), tr.IdleTime())
}

func TestTracker_ScheduleIdleWaitsForQuiet(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(500*time.Millisecond, WithClock(clock))

	ran := 0
	tr.ScheduleIdle(func() { ran++ }, 10*time.Second)

	clock.Advance(300 * time.Millisecond)
	tr.RecordActivity()
	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, 0, ran, "activity at 300ms postpones the idle point to 800ms")

	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 1, ran)

	clock.Advance(5 * time.Second)
	assert.Equal(t, 1, ran, "fn runs once")
}

func TestTracker_ScheduleIdleTimeout(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	tr := NewTracker(500*time.Millisecond, WithClock(clock))

	var firedAt time.Time
	tr.ScheduleIdle(func() { firedAt = clock.Now() }, time.Second)

	for i := 0; i < 20; i++ {
		clock.Advance(100 * time.Millisecond)
		tr.RecordActivity()
	}

	require.False(t, firedAt.IsZero(), "timeout must fire even under constant activity")
	assert.Equal(t, start.Add(time.Second), firedAt)
}

func TestTracker_ScheduleIdleAlreadyIdleRunsAsync(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(500*time.Millisecond, WithClock(clock))
	clock.Advance(time.Second)

	ran := 0
	tr.ScheduleIdle(func() { ran++ }, time.Second)
	assert.Equal(t, 0, ran, "never on the caller's goroutine")

	clock.Advance(0)
	assert.Equal(t, 1, ran)
}

func TestTracker_ScheduleIdleCancel(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(500*time.Millisecond, WithClock(clock))

	ran := 0
	cancel := tr.ScheduleIdle(func() { ran++ }, time.Second)
	cancel()
	cancel()

	clock.Advance(2 * time.Second)
	assert.Equal(t, 0, ran)
}

func TestTracker_Status(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(time.Second, WithClock(clock))
	clock.Advance(90 * time.Second)

	st := tr.Status()
	assert.Equal(t, tr.SessionID(), st.SessionID)
	assert.Equal(t, 90*time.Second, st.Duration)
	assert.True(t, st.Idle)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{2 * time.Minute, "2m"},
		{90 * time.Second, "1m 30s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}
