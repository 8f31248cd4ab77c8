// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"log/slog"
	"sort"

	"github.com/PointerLife/openbook/internal/telemetry"
)

// DefaultOverscan is the number of items mounted beyond each viewport edge.
const DefaultOverscan = 5

// Config holds the driver tuning knobs.
type Config struct {
	Overscan        int
	FollowThreshold int
	CacheSize       int
	Estimate        EstimateConfig
}

// DefaultConfig returns the driver defaults.
func DefaultConfig() Config {
	return Config{
		Overscan:        DefaultOverscan,
		FollowThreshold: DefaultFollowThreshold,
		CacheSize:       DefaultCacheSize,
		Estimate:        DefaultEstimateConfig(),
	}
}

// Placement is one mounted item and where it sits.
type Placement struct {
	ID      string
	Index   int
	Offset  int
	Height  int
	Version uint64
	// Sticky is set for subscribed items mounted outside the window.
	Sticky bool
}

// Frame is the complete output of one driver recompute.
type Frame struct {
	Generation uint64
	Range      WindowRange
	// Mounted lists every item that should be on screen, in index order.
	Mounted []Placement
	// Mount lists items that were not mounted at this content version in
	// the previous frame. Hosts render and measure exactly these.
	Mount []Placement
	// Unmount lists ids mounted in the previous frame that no longer are.
	Unmount        []string
	ScrollOffset   int
	ViewportHeight int
	TotalHeight    int
	Mode           Mode
	Anchor         Anchor
}

// Contains reports whether id is mounted in the frame.
func (f Frame) Contains(id string) bool {
	for _, p := range f.Mounted {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger used for debug tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithHeightCache hands the driver an explicitly constructed cache.
// The cache must not be shared with another driver.
func WithHeightCache(cache *HeightCache) Option {
	return func(d *Driver) {
		if cache != nil {
			d.cache = cache
		}
	}
}

// =============================================================================
// DRIVER
// =============================================================================

// Driver is the single entry point reacting to every input: item list
// changes, scrolling, resizing and height measurements. Each input
// produces a complete Frame.
//
// Every recompute bumps the generation. Hosts tag measurements with the
// generation of the frame that asked for them; measurements from older
// generations update the layout but do not trigger a recompute.
type Driver struct {
	cfg    Config
	cache  *HeightCache
	layout *Windower
	anchor *AnchorController
	logger *slog.Logger

	items []Item
	index map[string]int

	scroll   int
	viewport int

	generation uint64
	mounted    map[string]uint64 // id -> content version mounted
	sticky     map[string]struct{}
	frame      Frame
}

// NewDriver creates a driver with an empty transcript.
func NewDriver(cfg Config, opts ...Option) *Driver {
	if cfg.Overscan < 0 {
		cfg.Overscan = DefaultOverscan
	}
	if cfg.FollowThreshold < 0 {
		cfg.FollowThreshold = DefaultFollowThreshold
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Estimate.Base <= 0 {
		cfg.Estimate = DefaultEstimateConfig()
	}

	d := &Driver{
		cfg:     cfg,
		layout:  NewWindower(),
		anchor:  NewAnchorController(cfg.FollowThreshold),
		logger:  slog.New(slog.DiscardHandler),
		index:   make(map[string]int),
		mounted: make(map[string]uint64),
		sticky:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cache == nil {
		d.cache = NewHeightCache(cfg.CacheSize, cfg.Estimate)
	}
	d.frame = Frame{Range: emptyRange()}
	return d
}

// Frame returns the most recent frame.
func (d *Driver) Frame() Frame {
	return d.frame
}

// Generation returns the generation of the most recent frame.
func (d *Driver) Generation() uint64 {
	return d.generation
}

// Len returns the number of items.
func (d *Driver) Len() int {
	return len(d.items)
}

// Item returns the item with the given id.
func (d *Driver) Item(id string) (Item, bool) {
	i, ok := d.index[id]
	if !ok {
		return nil, false
	}
	return d.items[i], true
}

// Cache returns the driver's height cache.
func (d *Driver) Cache() *HeightCache {
	return d.cache
}

// =============================================================================
// INPUTS
// =============================================================================

// SetItems replaces the whole item list.
func (d *Driver) SetItems(items []Item) Frame {
	return d.mutate("set", func() {
		d.items = make([]Item, 0, len(items))
		for _, it := range items {
			if it != nil {
				d.items = append(d.items, it)
			}
		}
		d.reindex()
		d.layout.Reset(len(d.items), func(i int) int { return d.cache.Get(d.items[i]) })
	})
}

// Append adds items at the end. An item whose id is already present is
// treated as an update.
func (d *Driver) Append(items ...Item) Frame {
	return d.mutate("append", func() {
		for _, it := range items {
			if it == nil {
				continue
			}
			if i, ok := d.index[it.ID()]; ok {
				d.items[i] = it
				d.layout.SetHeight(i, d.cache.Get(it))
				continue
			}
			d.index[it.ID()] = len(d.items)
			d.items = append(d.items, it)
			d.layout.Append(d.cache.Get(it))
		}
	})
}

// Prepend inserts older items before the current first item.
func (d *Driver) Prepend(items ...Item) Frame {
	return d.mutate("prepend", func() {
		fresh := make([]Item, 0, len(items))
		heights := make([]int, 0, len(items))
		for _, it := range items {
			if it == nil {
				continue
			}
			if _, ok := d.index[it.ID()]; ok {
				continue
			}
			fresh = append(fresh, it)
			heights = append(heights, d.cache.Get(it))
		}
		if len(fresh) == 0 {
			return
		}
		d.items = append(fresh, d.items...)
		d.reindex()
		d.layout.Prepend(heights)
	})
}

// Update replaces an item with a newer snapshot of itself. Unknown items
// are appended.
func (d *Driver) Update(item Item) Frame {
	if item == nil {
		return d.frame
	}
	if _, ok := d.index[item.ID()]; !ok {
		return d.Append(item)
	}
	return d.mutate("update", func() {
		i := d.index[item.ID()]
		d.items[i] = item
		d.layout.SetHeight(i, d.cache.Get(item))
	})
}

// Scroll applies a user scroll to offset.
func (d *Driver) Scroll(offset int) Frame {
	d.scroll = clamp(offset, 0, d.maxScroll())
	d.anchor.OnUserScroll(d.view(), d.scroll, d.viewport)
	return d.render("scroll")
}

// ScrollBy scrolls relative to the current offset.
func (d *Driver) ScrollBy(delta int) Frame {
	return d.Scroll(d.scroll + delta)
}

// ScrollToBottom scrolls to the end and resumes following.
func (d *Driver) ScrollToBottom() Frame {
	return d.Scroll(d.maxScroll())
}

// ScrollTo brings item id into view with the given alignment and anchors
// on it. Unknown ids leave the frame untouched.
func (d *Driver) ScrollTo(id string, align Alignment) Frame {
	scroll, ok := d.anchor.ScrollTo(d.view(), id, align, d.viewport)
	if !ok {
		return d.frame
	}
	d.scroll = scroll
	return d.render("scroll_to")
}

// Resize sets the viewport height.
func (d *Driver) Resize(viewport int) Frame {
	if viewport < 0 {
		viewport = 0
	}
	return d.mutate("resize", func() {
		d.viewport = viewport
	})
}

// InvalidateAll forgets every measurement, used when the layout width
// changes and every height is wrong. Every item is remounted.
func (d *Driver) InvalidateAll() Frame {
	return d.mutate("invalidate", func() {
		d.cache.Reset()
		d.mounted = make(map[string]uint64)
		d.layout.Reset(len(d.items), func(i int) int { return d.cache.Get(d.items[i]) })
	})
}

// Refresh recomputes the frame from the current layout. Hosts call it
// once a batch of stale measurements has been absorbed.
func (d *Driver) Refresh() Frame {
	return d.mutate("refresh", func() {})
}

// Subscribe marks id as live (streaming). It stays mounted until
// Unsubscribe, wherever the viewport is.
func (d *Driver) Subscribe(id string) Frame {
	if _, ok := d.sticky[id]; ok {
		return d.frame
	}
	d.sticky[id] = struct{}{}
	return d.render("subscribe")
}

// Unsubscribe ends a live subscription.
func (d *Driver) Unsubscribe(id string) Frame {
	if _, ok := d.sticky[id]; !ok {
		return d.frame
	}
	delete(d.sticky, id)
	return d.render("unsubscribe")
}

// Subscribed reports whether id has an open subscription.
func (d *Driver) Subscribed(id string) bool {
	_, ok := d.sticky[id]
	return ok
}

// OnHeightMeasured reports the real height of an item rendered for frame
// generation gen at content version version.
//
// The height is always kept when it is valid and still describes the
// item. A measurement from an older generation adjusts the layout and
// scroll offset but does not recompute the window; stale is then true.
// Non-positive heights are ignored.
func (d *Driver) OnHeightMeasured(gen uint64, id string, version uint64, height int) (frame Frame, stale bool) {
	if height <= 0 {
		return d.frame, false
	}
	i, ok := d.index[id]
	current := ok && d.items[i].ContentVersion() == version
	if ok && !current {
		// Measured an outdated version of a known item.
		return d.frame, gen != d.generation
	}
	d.cache.Record(id, version, height)

	if gen != d.generation {
		telemetry.StaleMeasurements.Inc()
		d.logger.Debug("stale height measurement",
			"id", id, "generation", gen, "current", d.generation, "height", height)
		if current {
			d.apply(func() { d.layout.SetHeight(i, height) })
		}
		return d.frame, true
	}

	if !ok || d.layout.Height(i) == height {
		return d.frame, false
	}
	return d.mutate("measure", func() { d.layout.SetHeight(i, height) }), false
}

// =============================================================================
// RECOMPUTE
// =============================================================================

// apply runs a mutation between an anchor capture and an anchor resolve
// so the viewport stays where the anchor says.
func (d *Driver) apply(fn func()) {
	prev := Snapshot{Scroll: d.scroll, Viewport: d.viewport, Total: d.layout.Total()}
	d.anchor.Capture(d.view(), prev)
	fn()
	d.scroll = d.anchor.Resolve(d.view(), d.viewport, prev)
}

func (d *Driver) mutate(cause string, fn func()) Frame {
	d.apply(fn)
	return d.render(cause)
}

func (d *Driver) render(cause string) Frame {
	d.generation++
	r := d.layout.Compute(d.scroll, d.viewport, d.cfg.Overscan)

	mounted := make([]Placement, 0, r.Len()+len(d.sticky))
	for i := r.Start; i <= r.End; i++ {
		mounted = append(mounted, d.placement(i, false))
	}
	for id := range d.sticky {
		i, ok := d.index[id]
		if !ok || r.Contains(i) {
			continue
		}
		mounted = append(mounted, d.placement(i, true))
	}
	sort.Slice(mounted, func(a, b int) bool { return mounted[a].Index < mounted[b].Index })

	next := make(map[string]uint64, len(mounted))
	var mount []Placement
	for _, p := range mounted {
		next[p.ID] = p.Version
		if v, ok := d.mounted[p.ID]; !ok || v != p.Version {
			mount = append(mount, p)
		}
	}
	var unmount []string
	for id := range d.mounted {
		if _, ok := next[id]; !ok {
			unmount = append(unmount, id)
		}
	}
	sort.Strings(unmount)
	d.mounted = next

	anchor, _ := d.anchor.Anchor()
	d.frame = Frame{
		Generation:     d.generation,
		Range:          r,
		Mounted:        mounted,
		Mount:          mount,
		Unmount:        unmount,
		ScrollOffset:   d.scroll,
		ViewportHeight: d.viewport,
		TotalHeight:    d.layout.Total(),
		Mode:           d.anchor.Mode(),
		Anchor:         anchor,
	}

	telemetry.FrameRecomputes.WithLabelValues(cause).Inc()
	telemetry.MountedItems.Set(float64(len(mounted)))
	d.logger.Debug("frame",
		"cause", cause,
		"generation", d.generation,
		"start", r.Start,
		"end", r.End,
		"scroll", d.scroll,
		"total", d.frame.TotalHeight,
		"mode", d.frame.Mode.String(),
		"mount", len(mount),
		"unmount", len(unmount))
	return d.frame
}

func (d *Driver) placement(i int, sticky bool) Placement {
	it := d.items[i]
	return Placement{
		ID:      it.ID(),
		Index:   i,
		Offset:  d.layout.Offset(i),
		Height:  d.layout.Height(i),
		Version: it.ContentVersion(),
		Sticky:  sticky,
	}
}

func (d *Driver) reindex() {
	d.index = make(map[string]int, len(d.items))
	for i, it := range d.items {
		d.index[it.ID()] = i
	}
}

func (d *Driver) maxScroll() int {
	m := d.layout.Total() - d.viewport
	if m < 0 {
		return 0
	}
	return m
}

// view adapts the driver's items and layout to the Layout interface.
func (d *Driver) view() Layout {
	return driverLayout{d}
}

type driverLayout struct{ d *Driver }

func (l driverLayout) Len() int               { return len(l.d.items) }
func (l driverLayout) IDAt(i int) string      { return l.d.items[i].ID() }
func (l driverLayout) Offset(i int) int       { return l.d.layout.Offset(i) }
func (l driverLayout) Height(i int) int       { return l.d.layout.Height(i) }
func (l driverLayout) Total() int             { return l.d.layout.Total() }
func (l driverLayout) IndexAt(offset int) int { return l.d.layout.IndexAt(offset) }

func (l driverLayout) IndexOf(id string) (int, bool) {
	i, ok := l.d.index[id]
	return i, ok
}
