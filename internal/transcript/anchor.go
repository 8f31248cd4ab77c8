// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

// DefaultFollowThreshold is how close to the bottom the viewport must be
// for new content to keep it pinned there.
const DefaultFollowThreshold = 100

// Mode is the scroll anchoring state.
type Mode int

const (
	// Following keeps the viewport pinned to the last item.
	Following Mode = iota
	// Anchored keeps a specific item at a fixed position relative to the
	// viewport top.
	Anchored
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Anchored {
		return "anchored"
	}
	return "following"
}

// Alignment selects where ScrollTo places the target item.
type Alignment int

const (
	AlignStart Alignment = iota
	AlignCenter
	AlignEnd
)

// Anchor pins the viewport top to an offset within an item.
type Anchor struct {
	ItemID           string
	OffsetWithinItem int
}

// Layout is the read-only view of item positions the anchor controller
// works against.
type Layout interface {
	Len() int
	IDAt(i int) string
	IndexOf(id string) (int, bool)
	Offset(i int) int
	Height(i int) int
	Total() int
	IndexAt(offset int) int
}

// Snapshot is the scroll state observed before a mutation.
type Snapshot struct {
	Scroll   int
	Viewport int
	Total    int
}

// AnchorController decides where the viewport goes when content changes
// underneath it.
type AnchorController struct {
	mode      Mode
	anchor    Anchor
	threshold int
}

// NewAnchorController creates a controller in Following mode.
func NewAnchorController(threshold int) *AnchorController {
	if threshold < 0 {
		threshold = DefaultFollowThreshold
	}
	return &AnchorController{mode: Following, threshold: threshold}
}

// Mode returns the current mode.
func (c *AnchorController) Mode() Mode {
	return c.mode
}

// Anchor returns the pinned anchor. ok is false while Following.
func (c *AnchorController) Anchor() (Anchor, bool) {
	if c.mode != Anchored {
		return Anchor{}, false
	}
	return c.anchor, true
}

// NearBottom reports whether the viewport bottom is within the follow
// threshold of the content end.
func (c *AnchorController) NearBottom(scroll, viewport, total int) bool {
	return scroll+viewport >= total-c.threshold
}

// OnUserScroll applies a scroll the user made. Landing near the bottom
// resumes following; anywhere else anchors to the topmost visible item.
func (c *AnchorController) OnUserScroll(l Layout, scroll, viewport int) {
	if l.Len() == 0 || c.NearBottom(scroll, viewport, l.Total()) {
		c.mode = Following
		c.anchor = Anchor{}
		return
	}
	c.mode = Anchored
	c.anchor = capture(l, scroll)
}

// Capture is called before a mutation. A Following viewport that has
// drifted away from the bottom (for instance after a resize) is anchored
// to its topmost visible item so the mutation cannot move it.
func (c *AnchorController) Capture(l Layout, prev Snapshot) {
	if c.mode != Following || l.Len() == 0 {
		return
	}
	if c.NearBottom(prev.Scroll, prev.Viewport, prev.Total) {
		return
	}
	c.mode = Anchored
	c.anchor = capture(l, prev.Scroll)
}

// Resolve returns the scroll offset to use after a mutation, given the
// state observed before it.
func (c *AnchorController) Resolve(l Layout, viewport int, prev Snapshot) int {
	maxScroll := l.Total() - viewport
	if maxScroll < 0 {
		maxScroll = 0
	}

	if c.mode == Following {
		if c.NearBottom(prev.Scroll, prev.Viewport, prev.Total) {
			return maxScroll
		}
		return clamp(prev.Scroll, 0, maxScroll)
	}

	i, ok := l.IndexOf(c.anchor.ItemID)
	if !ok {
		// The anchor item is gone: stay put and re-anchor on whatever is
		// there now.
		scroll := clamp(prev.Scroll, 0, maxScroll)
		if l.Len() == 0 {
			c.mode = Following
			c.anchor = Anchor{}
			return scroll
		}
		c.anchor = capture(l, scroll)
		return scroll
	}

	within := c.anchor.OffsetWithinItem
	if h := l.Height(i); within > h && h > 0 {
		// The anchor item shrank past the pinned point. Re-anchor on
		// whatever now sits at the viewport top.
		scroll := clamp(l.Offset(i)+h, 0, maxScroll)
		c.anchor = capture(l, scroll)
		return scroll
	}
	return clamp(l.Offset(i)+within, 0, maxScroll)
}

// ScrollTo anchors the viewport on item id with the given alignment and
// returns the resulting scroll offset. ok is false for unknown ids.
func (c *AnchorController) ScrollTo(l Layout, id string, align Alignment, viewport int) (int, bool) {
	i, ok := l.IndexOf(id)
	if !ok {
		return 0, false
	}

	h := l.Height(i)
	within := 0
	switch align {
	case AlignCenter:
		within = (h - viewport) / 2
	case AlignEnd:
		within = h - viewport
	}

	c.mode = Anchored
	c.anchor = Anchor{ItemID: id, OffsetWithinItem: within}

	maxScroll := l.Total() - viewport
	if maxScroll < 0 {
		maxScroll = 0
	}
	return clamp(l.Offset(i)+within, 0, maxScroll), true
}

func capture(l Layout, scroll int) Anchor {
	i := l.IndexAt(scroll)
	if i < 0 {
		return Anchor{}
	}
	return Anchor{ItemID: l.IDAt(i), OffsetWithinItem: scroll - l.Offset(i)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
