// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package persist coalesces writes per key in front of a key-value backend.
//
// Enqueue never blocks. Each key holds at most one pending payload; a new
// payload replaces the old one and restarts the key's debounce timer,
// bounded by MaxDelay after the first unwritten enqueue so a hot key is
// still written regularly. When the timer fires the write is handed to an
// optional IdleScheduler, or written directly.
//
// Failed writes are retried with exponential backoff. After MaxRetries
// the failure handler is called once and the payload is dropped; the
// in-memory state stays the source of truth.
//
// # Usage
//
//	q := persist.New(backend, persist.DefaultConfig(),
//	    persist.WithIdleScheduler(tracker),
//	    persist.WithFailureHandler(func(key string, err error) { ... }))
//	defer q.Close()
//
//	q.Enqueue("conversations/conv_1", payload)
package persist
