// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/transcript"
)

// messageItem is the transcript view of one message at one version.
type messageItem struct {
	id      string
	seq     int
	version uint64
	parts   []transcript.Part
}

func newMessageItem(msg *model.Message) messageItem {
	src := msg.Parts()
	parts := make([]transcript.Part, 0, len(src))
	for _, p := range src {
		parts = append(parts, transcript.Part{Kind: partKind(p.Kind), Size: p.Size()})
	}
	return messageItem{
		id:      msg.ID,
		seq:     msg.Seq,
		version: msg.Version(),
		parts:   parts,
	}
}

func (it messageItem) ID() string               { return it.id }
func (it messageItem) SequenceIndex() int       { return it.seq }
func (it messageItem) ContentVersion() uint64   { return it.version }
func (it messageItem) Parts() []transcript.Part { return it.parts }

func partKind(k model.PartKind) transcript.PartKind {
	switch k {
	case model.PartCode:
		return transcript.PartCode
	case model.PartImage:
		return transcript.PartImage
	case model.PartToolResult:
		return transcript.PartToolResult
	default:
		return transcript.PartText
	}
}

func itemsOf(msgs []*model.Message) []transcript.Item {
	items := make([]transcript.Item, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, newMessageItem(m))
	}
	return items
}
