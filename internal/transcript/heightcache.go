// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import lru "github.com/hashicorp/golang-lru/v2"

// DefaultCacheSize bounds the number of items the HeightCache remembers.
const DefaultCacheSize = 2000

type heightEntry struct {
	version  uint64
	measured int // 0 until a measurement arrives for version

	estimate    int
	hasEstimate bool
}

// HeightCache remembers measured heights per (id, content version) and
// falls back to an estimate for anything it does not know.
// Least recently used entries are evicted past the capacity; eviction
// only costs a re-estimate.
type HeightCache struct {
	estimate EstimateConfig
	entries  *lru.Cache[string, *heightEntry]
}

// NewHeightCache creates a cache holding at most capacity entries.
// A non-positive capacity selects DefaultCacheSize.
func NewHeightCache(capacity int, estimate EstimateConfig) *HeightCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if estimate.Base <= 0 {
		estimate = DefaultEstimateConfig()
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, *heightEntry](capacity)
	return &HeightCache{estimate: estimate, entries: entries}
}

// Get returns the measured height of item for its current content
// version, or the estimate when no such measurement exists.
func (c *HeightCache) Get(item Item) int {
	if item == nil {
		return c.estimate.Estimate(nil)
	}

	e := c.touch(item.ID(), item.ContentVersion())
	if e.measured > 0 {
		return e.measured
	}
	if !e.hasEstimate {
		e.estimate = c.estimate.Estimate(item.Parts())
		e.hasEstimate = true
	}
	return e.estimate
}

// Record stores a measured height for (id, version), replacing whatever
// was known about other versions of id. Non-positive heights are ignored
// and reported as false.
func (c *HeightCache) Record(id string, version uint64, height int) bool {
	if height <= 0 || id == "" {
		return false
	}
	e := c.touch(id, version)
	e.measured = height
	return true
}

// Measured returns the measured height for (id, version) without
// touching the recency order.
func (c *HeightCache) Measured(id string, version uint64) (int, bool) {
	e, ok := c.entries.Peek(id)
	if !ok || e.version != version || e.measured <= 0 {
		return 0, false
	}
	return e.measured, true
}

// Invalidate forgets the measurement of id so the next Get re-estimates.
func (c *HeightCache) Invalidate(id string) {
	c.entries.Remove(id)
}

// Reset drops every entry, used when the layout width changes.
func (c *HeightCache) Reset() {
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *HeightCache) Len() int {
	return c.entries.Len()
}

// touch returns the entry for id, creating it or marking it most
// recently used. A version change discards the old measurement and
// estimate.
func (c *HeightCache) touch(id string, version uint64) *heightEntry {
	if e, ok := c.entries.Get(id); ok {
		if e.version != version {
			*e = heightEntry{version: version}
		}
		return e
	}
	e := &heightEntry{version: version}
	c.entries.Add(id, e)
	return e
}
