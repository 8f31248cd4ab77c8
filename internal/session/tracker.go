// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/PointerLife/openbook/internal/persist"
)

// DefaultIdleThreshold is how long without input counts as idle.
const DefaultIdleThreshold = 750 * time.Millisecond

// =============================================================================
// ACTIVITY TRACKER
// =============================================================================

// Tracker records user activity and tells the persistence queue when the
// terminal is idle. It implements persist.IdleScheduler.
type Tracker struct {
	mu sync.Mutex

	clock persist.Clock

	sessionID    string
	startTime    time.Time
	lastActivity time.Time
	threshold    time.Duration
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock substitutes the time source.
func WithClock(c persist.Clock) TrackerOption {
	return func(t *Tracker) { t.clock = c }
}

// NewTracker creates a tracker; threshold <= 0 uses DefaultIdleThreshold.
func NewTracker(threshold time.Duration, opts ...TrackerOption) *Tracker {
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}
	t := &Tracker{clock: persist.SystemClock, threshold: threshold}
	for _, opt := range opts {
		opt(t)
	}
	now := t.clock.Now()
	t.startTime = now
	t.lastActivity = now
	t.sessionID = "sess_" + now.Format("20060102_150405")
	return t
}

// SessionID returns the current session ID.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// RecordActivity marks the user as active now. Call on every key press,
// scroll and submit.
func (t *Tracker) RecordActivity() {
	now := t.clock.Now()
	t.mu.Lock()
	t.lastActivity = now
	t.mu.Unlock()
}

// IdleTime returns how long since last activity.
func (t *Tracker) IdleTime() time.Duration {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.lastActivity)
}

// IsIdle reports whether the idle threshold has passed.
func (t *Tracker) IsIdle() bool {
	return t.IdleTime() >= t.threshold
}

// ScheduleIdle runs fn on its own goroutine once the user has been idle for
// the threshold, or once timeout elapses, whichever comes first. fn never
// runs on the caller's goroutine.
func (t *Tracker) ScheduleIdle(fn func(), timeout time.Duration) (cancel func()) {
	task := &idleTask{tracker: t, fn: fn, deadline: t.clock.Now().Add(timeout)}
	task.arm()
	return task.cancel
}

type idleTask struct {
	tracker  *Tracker
	fn       func()
	deadline time.Time

	mu        sync.Mutex
	timer     persist.Timer
	cancelled bool
	fired     bool
}

// arm waits until the earlier of the idle point and the deadline.
func (it *idleTask) arm() {
	t := it.tracker
	now := t.clock.Now()

	wait := t.threshold - t.IdleTime()
	if untilDeadline := it.deadline.Sub(now); untilDeadline < wait {
		wait = untilDeadline
	}
	if wait < 0 {
		wait = 0
	}

	it.mu.Lock()
	defer it.mu.Unlock()
	if it.cancelled || it.fired {
		return
	}
	it.timer = t.clock.AfterFunc(wait, it.check)
}

func (it *idleTask) check() {
	t := it.tracker
	if !t.IsIdle() && t.clock.Now().Before(it.deadline) {
		it.arm()
		return
	}

	it.mu.Lock()
	if it.cancelled || it.fired {
		it.mu.Unlock()
		return
	}
	it.fired = true
	it.mu.Unlock()

	it.fn()
}

func (it *idleTask) cancel() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.cancelled = true
	if it.timer != nil {
		it.timer.Stop()
	}
}

// =============================================================================
// STATUS
// =============================================================================

// Status is a point-in-time view of the session.
type Status struct {
	SessionID string        `json:"session_id"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	IdleTime  time.Duration `json:"idle_time"`
	Idle      bool          `json:"idle"`
}

// Status returns the current session status.
func (t *Tracker) Status() Status {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	idle := now.Sub(t.lastActivity)
	return Status{
		SessionID: t.sessionID,
		StartTime: t.startTime,
		Duration:  now.Sub(t.startTime),
		IdleTime:  idle,
		Idle:      idle >= t.threshold,
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// TickMsg is sent periodically so the status bar can show idle/save state.
type TickMsg struct {
	Time time.Time
}

// TickCmd returns a command that ticks once after d.
func TickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
