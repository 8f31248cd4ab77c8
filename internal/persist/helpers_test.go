// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package persist

import (
	"context"
	"errors"
	"sync"
	"time"
)

// =============================================================================
// FAKE CLOCK
// =============================================================================

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	done    bool
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, running due timers in order on the calling
// goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.done || t.stopped || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.fn()
	}
}

// =============================================================================
// FAKE BACKEND
// =============================================================================

type writeRecord struct {
	key     string
	payload string
	at      time.Time
}

type fakeBackend struct {
	mu     sync.Mutex
	clock  Clock
	data   map[string][]byte
	writes []writeRecord
	// failures is the number of upcoming writes that fail.
	failures int
	calls    int
}

var errQuota = errors.New("quota exceeded")

func newFakeBackend(clock Clock) *fakeBackend {
	return &fakeBackend{clock: clock, data: make(map[string][]byte)}
}

func (b *fakeBackend) Write(_ context.Context, key string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failures != 0 {
		if b.failures > 0 {
			b.failures--
		}
		return errQuota
	}
	b.data[key] = append([]byte(nil), payload...)
	b.writes = append(b.writes, writeRecord{key: key, payload: string(payload), at: b.clock.Now()})
	return nil
}

func (b *fakeBackend) Read(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (b *fakeBackend) failNext(n int) {
	b.mu.Lock()
	b.failures = n
	b.mu.Unlock()
}

func (b *fakeBackend) recorded() []writeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]writeRecord(nil), b.writes...)
}

func (b *fakeBackend) attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// =============================================================================
// FAKE IDLE SCHEDULER
// =============================================================================

type fakeIdle struct {
	mu        sync.Mutex
	scheduled []*idleTask
}

type idleTask struct {
	fn        func()
	timeout   time.Duration
	cancelled bool
}

func (s *fakeIdle) ScheduleIdle(fn func(), timeout time.Duration) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &idleTask{fn: fn, timeout: timeout}
	s.scheduled = append(s.scheduled, task)
	return func() {
		s.mu.Lock()
		task.cancelled = true
		s.mu.Unlock()
	}
}

// runAll runs every scheduled task that was not cancelled.
func (s *fakeIdle) runAll() {
	s.mu.Lock()
	var due []func()
	for _, task := range s.scheduled {
		if !task.cancelled {
			due = append(due, task.fn)
		}
	}
	s.scheduled = nil
	s.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

func (s *fakeIdle) tasks() []*idleTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*idleTask(nil), s.scheduled...)
}

// =============================================================================
// GATED BACKEND
// =============================================================================

// gatedBackend holds the first write until release is sent the result it
// should return. Later writes go straight to the wrapped backend.
type gatedBackend struct {
	*fakeBackend
	started chan struct{}
	release chan error
	once    sync.Once
}

func newGatedBackend(clock Clock) *gatedBackend {
	return &gatedBackend{
		fakeBackend: newFakeBackend(clock),
		started:     make(chan struct{}),
		release:     make(chan error),
	}
}

func (b *gatedBackend) Write(ctx context.Context, key string, payload []byte) error {
	gated := false
	b.once.Do(func() { gated = true })
	if !gated {
		return b.fakeBackend.Write(ctx, key, payload)
	}
	close(b.started)
	if err := <-b.release; err != nil {
		b.fakeBackend.mu.Lock()
		b.fakeBackend.calls++
		b.fakeBackend.mu.Unlock()
		return err
	}
	return b.fakeBackend.Write(ctx, key, payload)
}
