// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/PointerLife/openbook/internal/ollama"
)

// =============================================================================
// RENDER MESSAGES
// =============================================================================

// heightMeasuredMsg carries a finished render back to the update loop.
// Generation is the frame that asked for the render; width is the layout
// width it was rendered at.
type heightMeasuredMsg struct {
	Generation uint64
	ID         string
	Version    uint64
	Width      int
	Lines      []string
}

// relayoutMsg asks for one recompute after measurements arrived for an
// older frame.
type relayoutMsg struct{}

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// streamChunkMsg delivers one chunk of the reply to message ID.
type streamChunkMsg struct {
	ID    string
	Chunk ollama.StreamChunk
}

// streamDoneMsg signals that the reply channel was closed.
type streamDoneMsg struct {
	ID string
}

// StreamTickMsg drives the capped-rate flush of buffered tokens.
type StreamTickMsg struct {
	Time time.Time
}

// =============================================================================
// PERSISTENCE MESSAGES
// =============================================================================

// SaveFailedMsg reports a conversation write that exhausted its retries.
// The host sends it from the queue's failure handler.
type SaveFailedMsg struct {
	Key string
	Err error
}

// NoticeMsg shows a one-line notice in the status bar.
type NoticeMsg struct {
	Text  string
	Error bool
}
