// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript virtualizes a long, growing list of chat messages.
//
// Only the items intersecting the viewport (plus an overscan margin) are
// mounted. Heights start as estimates and are corrected as the host
// measures rendered items, while the scroll position stays stable.
//
// # Key Types
//
//   - HeightCache: bounded LRU of measured heights keyed by item id and content version
//   - Windower: prefix-summed layout with binary-searched visible ranges
//   - AnchorController: follow-the-bottom or pinned-to-an-item scroll policy
//   - Driver: ties the three together and emits Frames
//
// # Usage
//
//	d := transcript.NewDriver(transcript.DefaultConfig())
//	frame := d.SetItems(items)
//	frame = d.Resize(40)
//	for _, p := range frame.Mount {
//	    // render p.ID off the update loop, then:
//	    frame, _ = d.OnHeightMeasured(frame.Generation, p.ID, p.Version, measured)
//	}
//
// Units are whatever the host measures in: pixels in a browser, lines in
// a terminal. The package never blocks and never returns errors; bad
// input is clamped or ignored.
//
// The Driver is not safe for concurrent use. It is meant to be owned by a
// single event loop.
package transcript
