// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

// PartKind is the closed set of content kinds an item can carry.
type PartKind int

const (
	PartText PartKind = iota
	PartCode
	PartImage
	PartToolResult
)

// String returns the kind name.
func (k PartKind) String() string {
	switch k {
	case PartText:
		return "text"
	case PartCode:
		return "code"
	case PartImage:
		return "image"
	case PartToolResult:
		return "tool_result"
	default:
		return "unknown"
	}
}

// Part describes one piece of an item's content. Size is the character
// length for textual parts and is ignored for images.
type Part struct {
	Kind PartKind
	Size int
}

// Item is a single transcript entry as seen by the renderer.
// Implementations must be treated as read-only snapshots.
type Item interface {
	ID() string
	SequenceIndex() int
	// ContentVersion changes whenever the content changes, including
	// every streamed token batch.
	ContentVersion() uint64
	Parts() []Part
}

// =============================================================================
// HEIGHT ESTIMATION
// =============================================================================

// EstimateConfig holds the heuristic used for items that were never measured.
type EstimateConfig struct {
	Base                int
	LongThreshold       int
	LongIncrement       int
	VeryLongThreshold   int
	VeryLongIncrement   int
	CodeIncrement       int
	ImageIncrement      int
	ToolResultIncrement int
}

// DefaultEstimateConfig returns the estimate heuristic in pixel-like units.
func DefaultEstimateConfig() EstimateConfig {
	return EstimateConfig{
		Base:                200,
		LongThreshold:       500,
		LongIncrement:       100,
		VeryLongThreshold:   1000,
		VeryLongIncrement:   200,
		CodeIncrement:       150,
		ImageIncrement:      300,
		ToolResultIncrement: 80,
	}
}

// Estimate returns the estimated height of an item made of parts.
// The result is always positive.
func (c EstimateConfig) Estimate(parts []Part) int {
	if c.Base <= 0 {
		c = DefaultEstimateConfig()
	}

	h := c.Base
	length := 0
	var hasCode, hasImage, hasTool bool
	for _, p := range parts {
		switch p.Kind {
		case PartText:
			length += p.Size
		case PartCode:
			length += p.Size
			hasCode = true
		case PartImage:
			hasImage = true
		case PartToolResult:
			length += p.Size
			hasTool = true
		}
	}

	// Length buckets are exclusive: very long replaces long.
	switch {
	case c.VeryLongThreshold > 0 && length > c.VeryLongThreshold:
		h += c.VeryLongIncrement
	case c.LongThreshold > 0 && length > c.LongThreshold:
		h += c.LongIncrement
	}
	if hasCode {
		h += c.CodeIncrement
	}
	if hasImage {
		h += c.ImageIncrement
	}
	if hasTool {
		h += c.ToolResultIncrement
	}

	if h < 1 {
		h = 1
	}
	return h
}
