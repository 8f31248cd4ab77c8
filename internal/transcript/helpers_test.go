// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import "fmt"

type testItem struct {
	id      string
	seq     int
	version uint64
	parts   []Part
}

func (t testItem) ID() string             { return t.id }
func (t testItem) SequenceIndex() int     { return t.seq }
func (t testItem) ContentVersion() uint64 { return t.version }
func (t testItem) Parts() []Part          { return t.parts }

// shortItem estimates at the default base height (200).
func shortItem(i int) testItem {
	return testItem{
		id:      fmt.Sprintf("item-%d", i),
		seq:     i,
		version: 1,
		parts:   []Part{{Kind: PartText, Size: 10}},
	}
}

func shortItems(from, n int) []Item {
	items := make([]Item, 0, n)
	for i := from; i < from+n; i++ {
		items = append(items, shortItem(i))
	}
	return items
}

func placementOf(f Frame, id string) (Placement, bool) {
	for _, p := range f.Mounted {
		if p.ID == id {
			return p, true
		}
	}
	return Placement{}, false
}
