// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/PointerLife/openbook/internal/telemetry"
)

var (
	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("persist: queue closed")

	// ErrNotFound is returned by backends for keys that were never written.
	ErrNotFound = errors.New("persist: key not found")
)

// Backend is the key-value store behind the queue.
type Backend interface {
	Write(ctx context.Context, key string, payload []byte) error
	// Read returns ErrNotFound for unknown keys.
	Read(ctx context.Context, key string) ([]byte, error)
}

// IdleScheduler runs fn once the host is idle, or after timeout at the
// latest. The returned cancel func prevents fn from running.
type IdleScheduler interface {
	ScheduleIdle(fn func(), timeout time.Duration) (cancel func())
}

// FailureFunc is told about a write that was dropped after its last retry.
type FailureFunc func(key string, err error)

// =============================================================================
// CONFIGURATION
// =============================================================================

// DefaultDebounce is the default quiet period before a key is written.
const DefaultDebounce = time.Second

// Config holds the queue timings. Zero fields take their defaults;
// a negative MaxRetries disables retries.
type Config struct {
	// Debounce is restarted by every Enqueue of a key.
	Debounce time.Duration
	// MaxDelay bounds how long a key can be deferred after its first
	// unwritten Enqueue.
	MaxDelay time.Duration
	// IdleTimeout is the longest an IdleScheduler may hold a due write.
	IdleTimeout time.Duration

	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	WriteTimeout time.Duration
	// WritesPerSecond caps backend writes across all keys. Zero is unlimited.
	WritesPerSecond float64
}

// DefaultConfig returns the default queue timings.
func DefaultConfig() Config {
	return Config{
		Debounce:     DefaultDebounce,
		MaxDelay:     5 * DefaultDebounce,
		IdleTimeout:  DefaultDebounce,
		MaxRetries:   3,
		RetryBackoff: 250 * time.Millisecond,
		MaxBackoff:   5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * c.Debounce
	}
	if c.MaxDelay < c.Debounce {
		c.MaxDelay = c.Debounce
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = c.Debounce
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = def.MaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.MaxBackoff < c.RetryBackoff {
		c.MaxBackoff = c.RetryBackoff
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// Backoff returns the delay before retry attempt n (1-based):
// RetryBackoff * 2^(n-1), capped at MaxBackoff.
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.RetryBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Pending   int    `json:"pending"`
	Enqueued  uint64 `json:"enqueued"`
	Coalesced uint64 `json:"coalesced"`
	Written   uint64 `json:"written"`
	Retried   uint64 `json:"retried"`
	Failed    uint64 `json:"failed"`
}

// =============================================================================
// QUEUE
// =============================================================================

// entry is the single pending write of a key.
type entry struct {
	payload []byte
	firstAt time.Time // first enqueue not yet written
	attempt int
	seq     uint64 // identifies the current timer; stale callbacks compare it

	timer      Timer
	cancelIdle func()
}

func (e *entry) stop() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.cancelIdle != nil {
		e.cancelIdle()
		e.cancelIdle = nil
	}
}

// Option configures a Queue.
type Option func(*Queue)

// WithIdleScheduler defers due writes to an idle period.
func WithIdleScheduler(s IdleScheduler) Option {
	return func(q *Queue) { q.idle = s }
}

// WithFailureHandler sets the callback for dropped writes.
func WithFailureHandler(fn FailureFunc) Option {
	return func(q *Queue) { q.onFailure = fn }
}

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

// Queue coalesces writes per key. Thread-safe.
type Queue struct {
	backend   Backend
	cfg       Config
	clock     Clock
	idle      IdleScheduler
	onFailure FailureFunc
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu       sync.Mutex
	settled  *sync.Cond // signalled when a write leaves inflight
	pending  map[string]*entry
	inflight map[string][]byte
	locks    map[string]*sync.Mutex // at most one write per key
	seq      uint64
	closed   bool
	stats    Stats
}

// New creates a queue writing to backend.
func New(backend Backend, cfg Config, opts ...Option) *Queue {
	q := &Queue{
		backend:  backend,
		cfg:      cfg.withDefaults(),
		clock:    SystemClock,
		logger:   slog.New(slog.DiscardHandler),
		pending:  make(map[string]*entry),
		inflight: make(map[string][]byte),
		locks:    make(map[string]*sync.Mutex),
	}
	q.settled = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	if q.cfg.WritesPerSecond > 0 {
		burst := int(q.cfg.WritesPerSecond)
		if burst < 1 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(q.cfg.WritesPerSecond), burst)
	}
	return q
}

// Config returns the effective configuration.
func (q *Queue) Config() Config {
	return q.cfg
}

// Enqueue replaces the pending payload of key and restarts its debounce
// timer. It never blocks on the backend. Enqueues after Close are dropped.
func (q *Queue) Enqueue(key string, payload []byte) {
	data := append([]byte(nil), payload...)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("enqueue on closed queue dropped", "key", key)
		return
	}

	now := q.clock.Now()
	q.seq++
	q.stats.Enqueued++
	telemetry.QueueEnqueued.Inc()

	e, ok := q.pending[key]
	if ok {
		q.stats.Coalesced++
		telemetry.QueueCoalesced.Inc()
		e.stop()
		e.payload = data
		e.attempt = 0
	} else {
		e = &entry{payload: data, firstAt: now}
		q.pending[key] = e
		telemetry.QueuePending.Set(float64(len(q.pending)))
	}
	e.seq = q.seq

	delay := q.cfg.Debounce
	direct := false
	if deadline := e.firstAt.Add(q.cfg.MaxDelay); !now.Add(delay).Before(deadline) {
		// A write forced by MaxDelay skips the idle scheduler, otherwise
		// continuous activity could keep postponing it.
		delay = deadline.Sub(now)
		if delay < 0 {
			delay = 0
		}
		direct = true
	}
	q.armLocked(key, e, delay, direct)
}

// EnqueueJSON marshals v and enqueues it. Marshal errors are returned
// immediately and nothing is queued.
func (q *Queue) EnqueueJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	q.Enqueue(key, data)
	return nil
}

// FlushNow writes the pending payload of key synchronously, retrying
// with backoff. It returns nil when nothing is pending.
func (q *Queue) FlushNow(key string) error {
	for {
		retryIn, err := q.flushOnce(key, 0, false)
		if err != nil && retryIn > 0 {
			q.sleep(retryIn)
			continue
		}
		return err
	}
}

// FlushAll flushes every pending key concurrently and returns the first
// error.
func (q *Queue) FlushAll() error {
	var g errgroup.Group
	for _, key := range q.Pending() {
		g.Go(func() error {
			return q.FlushNow(key)
		})
	}
	return g.Wait()
}

// Read returns the latest payload for key, preferring a pending or
// in-flight payload over the backend.
func (q *Queue) Read(ctx context.Context, key string) ([]byte, error) {
	q.mu.Lock()
	if e, ok := q.pending[key]; ok {
		data := append([]byte(nil), e.payload...)
		q.mu.Unlock()
		return data, nil
	}
	if payload, ok := q.inflight[key]; ok {
		data := append([]byte(nil), payload...)
		q.mu.Unlock()
		return data, nil
	}
	q.mu.Unlock()
	return q.backend.Read(ctx, key)
}

// Pending returns the keys waiting to be written, sorted.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]string, 0, len(q.pending))
	for k := range q.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.Pending = len(q.pending)
	return s
}

// Close stops all timers, waits for writes in flight, flushes everything
// pending and refuses further enqueues. A write that fails during Close
// is retried until it succeeds or is dropped and reported. Calling Close
// twice is a no-op.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, e := range q.pending {
		e.stop()
	}
	q.mu.Unlock()

	var errs []error
	for {
		q.mu.Lock()
		for len(q.inflight) > 0 {
			q.settled.Wait()
		}
		n := len(q.pending)
		q.mu.Unlock()

		if n == 0 {
			return errors.Join(errs...)
		}
		if err := q.FlushAll(); err != nil {
			errs = append(errs, err)
		}
	}
}

// =============================================================================
// FLUSHING
// =============================================================================

func (q *Queue) armLocked(key string, e *entry, delay time.Duration, direct bool) {
	seq := e.seq
	e.timer = q.clock.AfterFunc(delay, func() { q.fire(key, seq, direct) })
}

// fire runs when a key's timer expires.
func (q *Queue) fire(key string, seq uint64, direct bool) {
	q.mu.Lock()
	e, ok := q.pending[key]
	if !ok || e.seq != seq || q.closed {
		q.mu.Unlock()
		return
	}
	e.timer = nil
	idle := q.idle
	// The idle wait may not push the write past MaxDelay.
	timeout := min(q.cfg.IdleTimeout, e.firstAt.Add(q.cfg.MaxDelay).Sub(q.clock.Now()))
	q.mu.Unlock()

	if direct || idle == nil || timeout <= 0 {
		q.flushOnce(key, seq, true)
		return
	}

	// ScheduleIdle may call back synchronously, so it runs unlocked.
	cancel := idle.ScheduleIdle(func() { q.flushOnce(key, seq, true) }, timeout)

	q.mu.Lock()
	if cur, ok := q.pending[key]; ok && cur.seq == seq {
		cur.cancelIdle = cancel
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	cancel()
}

// flushOnce makes one write attempt for key. A non-zero seq only
// flushes the payload that timer was armed for. On a retryable failure
// the entry is requeued and the backoff returned; when async is set the
// retry timer is armed as well.
func (q *Queue) flushOnce(key string, seq uint64, async bool) (time.Duration, error) {
	retryIn, dropped, err := q.flushKey(key, seq, async)
	if dropped && q.onFailure != nil {
		q.onFailure(key, err)
	}
	return retryIn, err
}

func (q *Queue) flushKey(key string, seq uint64, async bool) (retryIn time.Duration, dropped bool, err error) {
	lock := q.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	q.mu.Lock()
	e, ok := q.pending[key]
	if !ok || (seq != 0 && e.seq != seq) {
		q.mu.Unlock()
		return 0, false, nil
	}
	e.stop()
	delete(q.pending, key)
	q.inflight[key] = e.payload
	telemetry.QueuePending.Set(float64(len(q.pending)))
	q.mu.Unlock()

	start := time.Now()
	err = q.write(key, e.payload)

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, key)
	q.settled.Broadcast()

	if err == nil {
		q.stats.Written++
		telemetry.ObserveWrite("ok", time.Since(start))
		q.logger.Debug("write", "key", key, "bytes", len(e.payload))
		return 0, false, nil
	}

	if _, superseded := q.pending[key]; superseded {
		// A newer payload is already queued; it replaces this one.
		telemetry.ObserveWrite("retry", time.Since(start))
		q.logger.Debug("failed write superseded", "key", key, "error", err)
		return 0, false, nil
	}

	e.attempt++
	if e.attempt > q.cfg.MaxRetries {
		q.stats.Failed++
		telemetry.ObserveWrite("failed", time.Since(start))
		q.logger.Error("write dropped", "key", key, "attempts", e.attempt, "error", err)
		return 0, true, err
	}

	q.stats.Retried++
	telemetry.ObserveWrite("retry", time.Since(start))
	q.seq++
	e.seq = q.seq
	q.pending[key] = e
	telemetry.QueuePending.Set(float64(len(q.pending)))

	backoff := q.cfg.Backoff(e.attempt)
	q.logger.Warn("write failed, retrying",
		"key", key, "attempt", e.attempt, "backoff", backoff, "error", err)
	if async && !q.closed {
		q.armLocked(key, e, backoff, true)
	}
	return backoff, false, err
}

func (q *Queue) write(key string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.WriteTimeout)
	defer cancel()

	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit %s: %w", key, err)
		}
	}
	if err := q.backend.Write(ctx, key, payload); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (q *Queue) keyLock(key string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.locks[key]
	if !ok {
		l = &sync.Mutex{}
		q.locks[key] = l
	}
	return l
}

func (q *Queue) sleep(d time.Duration) {
	done := make(chan struct{})
	q.clock.AfterFunc(d, func() { close(done) })
	<-done
}
