// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimate_PartKinds(t *testing.T) {
	cfg := DefaultEstimateConfig()

	tests := []struct {
		name  string
		parts []Part
		want  int
	}{
		{"empty", nil, 200},
		{"short text", []Part{{Kind: PartText, Size: 120}}, 200},
		{"long text", []Part{{Kind: PartText, Size: 600}}, 300},
		{"very long text", []Part{{Kind: PartText, Size: 1500}}, 400},
		{"code", []Part{{Kind: PartText, Size: 50}, {Kind: PartCode, Size: 80}}, 350},
		{"image", []Part{{Kind: PartImage}}, 500},
		{"tool result", []Part{{Kind: PartToolResult, Size: 40}}, 280},
		{"everything", []Part{
			{Kind: PartText, Size: 700},
			{Kind: PartCode, Size: 400},
			{Kind: PartImage},
			{Kind: PartToolResult, Size: 10},
		}, 200 + 200 + 150 + 300 + 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.Estimate(tt.parts))
		})
	}
}

func TestEstimate_ZeroConfigUsesDefaults(t *testing.T) {
	assert.Equal(t, 200, EstimateConfig{}.Estimate(nil))
}

func TestHeightCache_UnknownItemIsEstimated(t *testing.T) {
	c := NewHeightCache(10, DefaultEstimateConfig())
	assert.Equal(t, 200, c.Get(shortItem(1)))
	assert.Equal(t, 200, c.Get(nil))
}

func TestHeightCache_RecordIsPerVersion(t *testing.T) {
	c := NewHeightCache(10, DefaultEstimateConfig())
	item := shortItem(1)

	require.True(t, c.Record(item.id, item.version, 340))
	assert.Equal(t, 340, c.Get(item))

	h, ok := c.Measured(item.id, item.version)
	require.True(t, ok)
	assert.Equal(t, 340, h)

	// A new content version invalidates the old measurement.
	item.version = 2
	assert.Equal(t, 200, c.Get(item))
	_, ok = c.Measured(item.id, 1)
	assert.False(t, ok)
}

func TestHeightCache_IgnoresInvalidHeights(t *testing.T) {
	c := NewHeightCache(10, DefaultEstimateConfig())
	item := shortItem(1)

	require.True(t, c.Record(item.id, item.version, 250))
	assert.False(t, c.Record(item.id, item.version, 0))
	assert.False(t, c.Record(item.id, item.version, -10))
	assert.Equal(t, 250, c.Get(item))
}

func TestHeightCache_Invalidate(t *testing.T) {
	c := NewHeightCache(10, DefaultEstimateConfig())
	item := shortItem(1)

	c.Record(item.id, item.version, 420)
	c.Invalidate(item.id)
	assert.Equal(t, 200, c.Get(item))
}

func TestHeightCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewHeightCache(2, DefaultEstimateConfig())
	a, b, d := shortItem(1), shortItem(2), shortItem(3)

	c.Record(a.id, 1, 111)
	c.Record(b.id, 1, 222)
	c.Get(a) // a is now most recent
	c.Record(d.id, 1, 333)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Measured(b.id, 1)
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Measured(a.id, 1)
	assert.True(t, ok)

	// Eviction only costs a re-estimate.
	assert.Equal(t, 200, c.Get(b))
}

func TestHeightCache_Reset(t *testing.T) {
	c := NewHeightCache(0, EstimateConfig{})
	c.Record("x", 1, 10)
	c.Reset()
	assert.Equal(t, 0, c.Len())
}
