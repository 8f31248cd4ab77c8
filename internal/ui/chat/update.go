// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/session"
	"github.com/PointerLife/openbook/internal/transcript"
	"github.com/PointerLife/openbook/internal/ui/components"
)

// mouseWheelLines is how far one wheel notch scrolls.
const mouseWheelLines = 3

// Update handles every message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		m.recordActivity()
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.recordActivity()
		return m.handleMouse(msg)

	case heightMeasuredMsg:
		return m.handleMeasured(msg)

	case relayoutMsg:
		m.relayoutPending = false
		return m, m.applyFrame(m.driver.Refresh())

	case streamChunkMsg:
		return m.handleChunk(msg)

	case StreamTickMsg:
		return m.handleStreamTick()

	case streamDoneMsg:
		return m.handleStreamDone(msg)

	case SaveFailedMsg:
		m.status = components.StatusError
		m.notice = "save failed: " + msg.Err.Error()
		return m, nil

	case NoticeMsg:
		if msg.Error {
			m.status = components.StatusError
		}
		m.notice = msg.Text
		return m, nil

	case session.TickMsg:
		if m.saver != nil {
			m.pendingWrites = len(m.saver.Pending())
		}
		return m, session.TickCmd(pendingPollInterval)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) recordActivity() {
	if m.activity != nil {
		m.activity.RecordActivity()
	}
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	widthChanged := msg.Width != m.width
	m.width = msg.Width
	m.height = msg.Height
	m.input.SetWidth(msg.Width)

	frames := []transcript.Frame{m.driver.Resize(m.viewportHeight())}
	if widthChanged {
		// Every measured height was for the old width.
		clear(m.rendered)
		frames = append(frames, m.driver.InvalidateAll())
	}
	return m, m.applyFrames(frames...)
}

func (m Model) handleMeasured(msg heightMeasuredMsg) (tea.Model, tea.Cmd) {
	if msg.Width != m.width {
		return m, nil
	}
	height := len(msg.Lines)
	if m.frame.Contains(msg.ID) {
		if cur := m.conv.GetMessageByID(msg.ID); cur != nil && cur.Version() == msg.Version {
			m.rendered[msg.ID] = renderedItem{version: msg.Version, width: msg.Width, lines: msg.Lines}
		}
	}

	f, stale := m.driver.OnHeightMeasured(msg.Generation, msg.ID, msg.Version, height)
	if stale {
		// The layout moved under the current frame; one recompute covers
		// every measurement of the batch.
		if m.relayoutPending {
			return m, nil
		}
		m.relayoutPending = true
		return m, func() tea.Msg { return relayoutMsg{} }
	}
	if f.Generation == m.frame.Generation {
		// Height matched the layout; nothing moved.
		return m, nil
	}
	return m, m.applyFrame(f)
}

// =============================================================================
// INPUT
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.stream != nil {
			m.stream.cancelled = true
			m.stream.cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.stream != nil && !m.stream.cancelled {
			m.stream.cancelled = true
			m.stream.cancel()
			m.notice = "stopping..."
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Up):
		return m.scrollBy(-1)
	case key.Matches(msg, m.keys.Down):
		return m.scrollBy(1)
	case key.Matches(msg, m.keys.PageUp):
		return m.scrollBy(-max(1, m.viewportHeight()-1))
	case key.Matches(msg, m.keys.PageDown):
		return m.scrollBy(max(1, m.viewportHeight()-1))

	case key.Matches(msg, m.keys.Top):
		return m.scrolled(m.driver.Scroll(0))

	case key.Matches(msg, m.keys.Bottom):
		return m, m.applyFrame(m.driver.ScrollToBottom())

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.MouseWheelUp:
		return m.scrollBy(-mouseWheelLines)
	case tea.MouseWheelDown:
		return m.scrollBy(mouseWheelLines)
	}
	return m, nil
}

func (m Model) scrollBy(delta int) (tea.Model, tea.Cmd) {
	return m.scrolled(m.driver.ScrollBy(delta))
}

func (m Model) scrolled(f transcript.Frame) (tea.Model, tea.Cmd) {
	if older, ok := m.loadOlder(f); ok {
		return m, m.applyFrames(f, older)
	}
	return m, m.applyFrame(f)
}

// submit appends the user's message and an empty streaming reply, then
// starts the stream.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.stream != nil {
		return m, nil
	}
	if m.client == nil {
		m.status = components.StatusError
		m.notice = "no model backend configured"
		return m, nil
	}
	m.input.Reset()

	before := len(m.conv.Messages)
	user := m.conv.AddUserMessage(text)
	reply := m.conv.AddAssistantMessage()
	if removed := before + 2 - len(m.conv.Messages); removed > 0 {
		m.hidden = max(0, m.hidden-removed)
	}

	cmd := m.applyFrames(
		m.driver.Append(newMessageItem(user), newMessageItem(reply)),
		m.driver.ScrollToBottom(),
		m.driver.Subscribe(reply.ID),
	)
	m.commit()

	ctx, cancel := context.WithCancel(context.Background())
	ch := m.client.ChatStreamChan(ctx, m.opts.ModelName, m.conv.ToOllamaMessages())
	m.stream = &stream{
		msg:    reply,
		ch:     ch,
		cancel: cancel,
		buffer: NewStreamingBuffer(m.opts.StreamFPS),
		stats:  model.NewStatistics(),
	}
	m.status = components.StatusStreaming
	m.notice = ""
	m.logger.Debug("stream started", "message", reply.ID, "model", m.opts.ModelName)

	return m, tea.Batch(cmd, waitForChunk(reply.ID, ch), streamTickCmd(m.stream.buffer.Interval()))
}

// =============================================================================
// STREAMING
// =============================================================================

func (m Model) handleChunk(msg streamChunkMsg) (tea.Model, tea.Cmd) {
	s := m.stream
	if s == nil || s.msg.ID != msg.ID {
		return m, nil
	}
	chunk := msg.Chunk
	if chunk.Error != nil {
		s.err = chunk.Error
	}
	if chunk.Content != "" {
		s.stats.RecordFirstToken()
		s.buffer.Write(chunk.Content)
		s.tokens++
	}
	if chunk.Done {
		s.final = chunk
	}
	return m, waitForChunk(msg.ID, s.ch)
}

func (m Model) handleStreamTick() (tea.Model, tea.Cmd) {
	s := m.stream
	if s == nil {
		return m, nil
	}
	next := streamTickCmd(s.buffer.Interval())
	content, ok := s.buffer.Flush()
	if !ok {
		return m, next
	}
	s.msg.AppendToken(content)
	cmd := m.applyFrame(m.driver.Update(newMessageItem(s.msg)))
	m.commit()
	return m, tea.Batch(cmd, next)
}

func (m Model) handleStreamDone(msg streamDoneMsg) (tea.Model, tea.Cmd) {
	s := m.stream
	if s == nil || s.msg.ID != msg.ID {
		return m, nil
	}
	m.stream = nil
	s.cancel()

	if content, ok := s.buffer.ForceFlush(); ok {
		s.msg.AppendToken(content)
	}
	tokens := s.tokens
	if s.final.CompletionTokens > 0 {
		tokens = s.final.CompletionTokens
	}
	s.stats.PromptTokens = s.final.PromptTokens
	s.stats.Finalize(tokens)
	s.msg.FinalizeStream(s.stats)

	switch {
	case s.cancelled:
		m.status = components.StatusReady
		m.notice = "reply stopped"
		if s.msg.IsEmpty() {
			s.msg.SetContent("_(stopped)_")
		}
	case s.err != nil && !errors.Is(s.err, context.Canceled):
		m.status = components.StatusError
		m.notice = s.err.Error()
		m.logger.Warn("stream failed", "message", s.msg.ID, "error", s.err)
		if s.msg.IsEmpty() {
			s.msg.SetContent("_(error: " + s.err.Error() + ")_")
		}
	default:
		m.status = components.StatusReady
		m.notice = ""
	}

	cmd := m.applyFrames(
		m.driver.Update(newMessageItem(s.msg)),
		m.driver.Unsubscribe(s.msg.ID),
	)
	m.commit()
	m.logger.Debug("stream finished", "message", s.msg.ID, "tokens", tokens, "cancelled", s.cancelled)
	return m, cmd
}
