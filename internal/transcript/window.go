// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import "sort"

// WindowRange is the contiguous, inclusive span of item indices to mount.
// An empty range has Start 0 and End -1.
type WindowRange struct {
	Start int
	End   int
	// Offsets[i-Start] is the top offset of item i.
	Offsets []int
}

func emptyRange() WindowRange {
	return WindowRange{Start: 0, End: -1}
}

// Empty reports whether the range holds no items.
func (r WindowRange) Empty() bool {
	return r.End < r.Start
}

// Len returns the number of items in the range.
func (r WindowRange) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether index i is inside the range.
func (r WindowRange) Contains(i int) bool {
	return !r.Empty() && i >= r.Start && i <= r.End
}

// Offset returns the top offset of index i if it is inside the range.
func (r WindowRange) Offset(i int) (int, bool) {
	if !r.Contains(i) || i-r.Start >= len(r.Offsets) {
		return 0, false
	}
	return r.Offsets[i-r.Start], true
}

// =============================================================================
// WINDOWER
// =============================================================================

// Windower maps item indices to vertical offsets.
//
// It keeps a prefix sum over item heights with a dirty watermark: a
// height change at index i only invalidates prefix entries after i, and
// the suffix is rebuilt lazily on the next query. Several corrections
// within one frame therefore cost a single rebuild.
type Windower struct {
	heights []int
	// prefix[i] is the sum of heights[:i]; len(prefix) == len(heights)+1.
	prefix []int
	// prefix[0..clean] is valid.
	clean int
}

// NewWindower creates an empty windower.
func NewWindower() *Windower {
	return &Windower{prefix: []int{0}}
}

// Reset replaces the layout with n items whose heights come from heightOf.
func (w *Windower) Reset(n int, heightOf func(int) int) {
	if n < 0 {
		n = 0
	}
	w.heights = make([]int, n)
	for i := range w.heights {
		w.heights[i] = sanitizeHeight(heightOf(i))
	}
	w.prefix = make([]int, n+1)
	w.clean = 0
}

// Len returns the number of items in the layout.
func (w *Windower) Len() int {
	return len(w.heights)
}

// Append adds one item at the end. When the prefix sum is fully valid
// this is O(1).
func (w *Windower) Append(h int) {
	h = sanitizeHeight(h)
	n := len(w.heights)
	w.heights = append(w.heights, h)
	if len(w.prefix) == 0 {
		w.prefix = []int{0}
	}
	w.prefix = append(w.prefix, 0)
	if w.clean == n {
		w.prefix[n+1] = w.prefix[n] + h
		w.clean = n + 1
	}
}

// Prepend inserts items before index 0. Every offset shifts, so the
// whole prefix sum is rebuilt on the next query.
func (w *Windower) Prepend(hs []int) {
	if len(hs) == 0 {
		return
	}
	heights := make([]int, 0, len(hs)+len(w.heights))
	for _, h := range hs {
		heights = append(heights, sanitizeHeight(h))
	}
	w.heights = append(heights, w.heights...)
	w.prefix = make([]int, len(w.heights)+1)
	w.clean = 0
}

// SetHeight changes the height of item i and reports whether it differed.
func (w *Windower) SetHeight(i, h int) bool {
	if i < 0 || i >= len(w.heights) {
		return false
	}
	h = sanitizeHeight(h)
	if w.heights[i] == h {
		return false
	}
	w.heights[i] = h
	if i < w.clean {
		w.clean = i
	}
	return true
}

// Height returns the height of item i, or 0 when out of range.
func (w *Windower) Height(i int) int {
	if i < 0 || i >= len(w.heights) {
		return 0
	}
	return w.heights[i]
}

// Offset returns the top offset of item i. Indices past the end return
// the total height.
func (w *Windower) Offset(i int) int {
	w.ensure()
	if i <= 0 {
		return 0
	}
	if i >= len(w.heights) {
		return w.prefix[len(w.heights)]
	}
	return w.prefix[i]
}

// Total returns the sum of all heights.
func (w *Windower) Total() int {
	w.ensure()
	return w.prefix[len(w.heights)]
}

// IndexAt returns the index of the item covering offset, clamped to the
// layout. It returns -1 when the layout is empty.
func (w *Windower) IndexAt(offset int) int {
	n := len(w.heights)
	if n == 0 {
		return -1
	}
	w.ensure()
	if offset < 0 {
		offset = 0
	}
	i := sort.Search(n, func(j int) bool { return w.prefix[j+1] > offset })
	if i >= n {
		i = n - 1
	}
	return i
}

// Compute returns the indices to mount for a viewport of height viewport
// scrolled to scroll, padded by overscan items on each side.
//
// The first visible item is the one covering scroll; the last is the
// last item whose top offset is at or above scroll+viewport. A
// non-positive viewport yields the first max(1, 2*overscan) items.
func (w *Windower) Compute(scroll, viewport, overscan int) WindowRange {
	n := len(w.heights)
	if n == 0 {
		return emptyRange()
	}
	if overscan < 0 {
		overscan = 0
	}
	w.ensure()

	if viewport <= 0 {
		count := 2 * overscan
		if count < 1 {
			count = 1
		}
		if count > n {
			count = n
		}
		return w.rangeOf(0, count-1)
	}

	total := w.prefix[n]
	if scroll < 0 {
		scroll = 0
	}
	if scroll > total {
		scroll = total
	}
	bottom := scroll + viewport

	first := sort.Search(n, func(j int) bool { return w.prefix[j+1] > scroll })
	if first >= n {
		first = n - 1
	}
	last := sort.Search(n, func(j int) bool { return w.prefix[j] > bottom }) - 1
	if last < first {
		last = first
	}

	start := first - overscan
	if start < 0 {
		start = 0
	}
	end := last + overscan
	if end > n-1 {
		end = n - 1
	}
	return w.rangeOf(start, end)
}

func (w *Windower) rangeOf(start, end int) WindowRange {
	offsets := make([]int, end-start+1)
	copy(offsets, w.prefix[start:end+1])
	return WindowRange{Start: start, End: end, Offsets: offsets}
}

// ensure rebuilds the prefix sum from the watermark up.
func (w *Windower) ensure() {
	n := len(w.heights)
	if len(w.prefix) != n+1 {
		w.prefix = make([]int, n+1)
		w.clean = 0
	}
	for j := w.clean; j < n; j++ {
		w.prefix[j+1] = w.prefix[j] + w.heights[j]
	}
	w.clean = n
}

func sanitizeHeight(h int) int {
	if h < 0 {
		return 0
	}
	return h
}

// ComputeWindow is the stateless form of Windower.Compute for callers
// that do not keep a layout around. It is O(itemCount).
func ComputeWindow(itemCount int, heightOf func(int) int, scrollOffset, viewportHeight, overscanCount int) WindowRange {
	if itemCount <= 0 {
		return emptyRange()
	}
	w := NewWindower()
	w.Reset(itemCount, heightOf)
	return w.Compute(scrollOffset, viewportHeight, overscanCount)
}
