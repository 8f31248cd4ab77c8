// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/ollama"
)

// DefaultStreamFPS caps how often streamed tokens reach the transcript.
const DefaultStreamFPS = 30

const defaultBatchSize = 15

// =============================================================================
// STREAMING BUFFER
// =============================================================================

// StreamingBuffer batches tokens so a fast stream produces at most one
// content version per frame. A flush is due when batchSize tokens have
// accumulated or one frame interval has passed since the last flush.
type StreamingBuffer struct {
	mu         sync.Mutex
	buffer     strings.Builder
	tokenCount int
	lastFlush  time.Time

	batchSize int
	interval  time.Duration
}

// NewStreamingBuffer creates a buffer for fps frames per second. Values
// outside 1..60 use DefaultStreamFPS.
func NewStreamingBuffer(fps int) *StreamingBuffer {
	return NewStreamingBufferWithConfig(defaultBatchSize, fps)
}

// NewStreamingBufferWithConfig creates a buffer with a custom batch size.
func NewStreamingBufferWithConfig(batchSize, fps int) *StreamingBuffer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if fps <= 0 || fps > 60 {
		fps = DefaultStreamFPS
	}
	return &StreamingBuffer{
		batchSize: batchSize,
		interval:  time.Second / time.Duration(fps),
		lastFlush: time.Now(),
	}
}

// Interval is the frame interval.
func (sb *StreamingBuffer) Interval() time.Duration {
	return sb.interval
}

// Write adds a token.
func (sb *StreamingBuffer) Write(token string) {
	if token == "" {
		return
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.WriteString(token)
	sb.tokenCount++
}

// Flush returns the buffered content if a flush is due.
func (sb *StreamingBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.buffer.Len() == 0 {
		return "", false
	}
	if sb.tokenCount < sb.batchSize && time.Since(sb.lastFlush) < sb.interval {
		return "", false
	}
	return sb.takeLocked(), true
}

// ForceFlush returns whatever is buffered.
func (sb *StreamingBuffer) ForceFlush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.buffer.Len() == 0 {
		return "", false
	}
	return sb.takeLocked(), true
}

// Pending returns the number of buffered tokens.
func (sb *StreamingBuffer) Pending() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.tokenCount
}

// Reset drops buffered content.
func (sb *StreamingBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.Reset()
	sb.tokenCount = 0
	sb.lastFlush = time.Now()
}

func (sb *StreamingBuffer) takeLocked() string {
	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.tokenCount = 0
	sb.lastFlush = time.Now()
	return content
}

// =============================================================================
// STREAM STATE
// =============================================================================

// Streamer opens a streamed chat reply.
type Streamer interface {
	ChatStreamChan(ctx context.Context, model string, messages []ollama.Message) <-chan ollama.StreamChunk
}

// stream is the reply currently being received.
type stream struct {
	msg       *model.Message
	ch        <-chan ollama.StreamChunk
	cancel    context.CancelFunc
	buffer    *StreamingBuffer
	stats     *model.Statistics
	tokens    int
	final     ollama.StreamChunk
	err       error
	cancelled bool
}

func waitForChunk(id string, ch <-chan ollama.StreamChunk) tea.Cmd {
	return func() tea.Msg {
		chunk, ok := <-ch
		if !ok {
			return streamDoneMsg{ID: id}
		}
		return streamChunkMsg{ID: id, Chunk: chunk}
	}
}

func streamTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
