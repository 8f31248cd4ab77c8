// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/session"
	"github.com/PointerLife/openbook/internal/transcript"
	"github.com/PointerLife/openbook/internal/ui/components"
	"github.com/PointerLife/openbook/internal/ui/styles"
)

// DefaultHistoryPage is how many older messages are mounted into the
// transcript at a time.
const DefaultHistoryPage = 100

// Lines taken by everything but the transcript: hint, input border,
// input, status bar.
const (
	inputHeight  = 3
	chromeHeight = 1 + 1 + inputHeight + 1
)

// pendingPollInterval is how often the unsaved-writes count refreshes.
const pendingPollInterval = time.Second

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Committer receives the conversation after every content change.
type Committer interface {
	Commit(conv *model.Conversation) error
	Pending() []string
}

// ActivityRecorder is told about every user input.
type ActivityRecorder interface {
	RecordActivity()
}

// Options configures the chat view.
type Options struct {
	ModelName      string
	ShowTimestamps bool
	ShowStats      bool
	StreamFPS      int
	HistoryPage    int
	Transcript     transcript.Config
	Theme          *styles.Theme
	Logger         *slog.Logger
}

// =============================================================================
// MODEL
// =============================================================================

// renderedItem is the last render of a mounted message.
type renderedItem struct {
	version uint64
	width   int
	lines   []string
}

// Model is the bubbletea chat view over one conversation. Only mounted
// messages are ever rendered; everything else is an estimated or cached
// height inside the transcript driver.
type Model struct {
	conv     *model.Conversation
	opts     Options
	client   Streamer
	saver    Committer
	activity ActivityRecorder
	logger   *slog.Logger

	driver   *transcript.Driver
	renderer *components.Renderer
	theme    *styles.Theme
	keys     KeyMap
	input    textarea.Model

	width  int
	height int
	frame  transcript.Frame
	// rendered holds lines for mounted messages only.
	rendered map[string]renderedItem
	// hidden is the number of oldest messages not yet handed to the driver.
	hidden int
	// relayoutPending is set while a relayoutMsg is in flight.
	relayoutPending bool

	stream        *stream
	status        components.Status
	notice        string
	pendingWrites int
	showHelp      bool
}

// New creates the chat view for conv. client, saver and activity may be
// nil; the view then cannot send, save or report activity respectively.
func New(conv *model.Conversation, client Streamer, saver Committer, activity ActivityRecorder, opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(styles.ThemeAuto)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.HistoryPage <= 0 {
		opts.HistoryPage = DefaultHistoryPage
	}
	if opts.StreamFPS <= 0 {
		opts.StreamFPS = DefaultStreamFPS
	}

	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 16000
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	m := Model{
		conv:     conv,
		opts:     opts,
		client:   client,
		saver:    saver,
		activity: activity,
		logger:   opts.Logger,
		driver:   transcript.NewDriver(opts.Transcript, transcript.WithLogger(opts.Logger)),
		renderer: components.NewRenderer(opts.Theme, components.RenderOptions{
			ShowTimestamps: opts.ShowTimestamps,
			ShowStats:      opts.ShowStats,
		}),
		theme:    opts.Theme,
		keys:     DefaultKeyMap(),
		input:    ta,
		rendered: make(map[string]renderedItem),
		status:   components.StatusReady,
	}

	msgs := conv.Messages
	if len(msgs) > opts.HistoryPage {
		m.hidden = len(msgs) - opts.HistoryPage
	}
	m.frame = m.driver.SetItems(itemsOf(msgs[m.hidden:]))
	return m
}

// Init starts the cursor blink and the unsaved-writes poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, session.TickCmd(pendingPollInterval))
}

// Conversation returns the conversation being shown.
func (m Model) Conversation() *model.Conversation {
	return m.conv
}

// Frame returns the latest transcript frame.
func (m Model) Frame() transcript.Frame {
	return m.frame
}

// IsStreaming reports whether a reply is being received.
func (m Model) IsStreaming() bool {
	return m.stream != nil
}

func (m Model) viewportHeight() int {
	h := m.height - chromeHeight
	if h < 1 {
		h = 1
	}
	return h
}

// =============================================================================
// FRAME APPLICATION
// =============================================================================

// applyFrame records f and returns render commands for its Mount list.
func (m *Model) applyFrame(f transcript.Frame) tea.Cmd {
	m.frame = f
	for _, id := range f.Unmount {
		delete(m.rendered, id)
	}
	if m.width == 0 {
		return nil
	}

	cmds := make([]tea.Cmd, 0, len(f.Mount))
	for _, p := range f.Mount {
		if cmd := m.renderCmd(f.Generation, p); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

// applyFrames applies the last of several frames produced by one input.
// Mount and Unmount are merged so nothing an earlier frame asked for is
// lost, and every render is tagged with the final generation.
func (m *Model) applyFrames(frames ...transcript.Frame) tea.Cmd {
	if len(frames) == 0 {
		return nil
	}
	last := frames[len(frames)-1]
	if len(frames) == 1 {
		return m.applyFrame(last)
	}

	asked := make(map[string]bool)
	var unmount []string
	for _, f := range frames {
		for _, p := range f.Mount {
			asked[p.ID] = true
		}
		for _, id := range f.Unmount {
			if !last.Contains(id) {
				unmount = append(unmount, id)
			}
		}
	}
	merged := last
	merged.Mount = nil
	for _, p := range last.Mounted {
		if asked[p.ID] {
			merged.Mount = append(merged.Mount, p)
		}
	}
	merged.Unmount = unmount
	return m.applyFrame(merged)
}

// renderCmd renders one placement off the update loop. A render that is
// already current is reported back without re-rendering.
func (m *Model) renderCmd(gen uint64, p transcript.Placement) tea.Cmd {
	width := m.width
	if r, ok := m.rendered[p.ID]; ok && r.version == p.Version && r.width == width {
		lines := r.lines
		return func() tea.Msg {
			return heightMeasuredMsg{Generation: gen, ID: p.ID, Version: p.Version, Width: width, Lines: lines}
		}
	}

	msg := m.conv.GetMessageByID(p.ID)
	if msg == nil {
		return nil
	}
	snap := msg.Snapshot()
	renderer := m.renderer
	return func() tea.Msg {
		out := renderer.Render(snap, width)
		return heightMeasuredMsg{Generation: gen, ID: snap.ID, Version: snap.Version, Width: width, Lines: out.Lines}
	}
}

// commit hands the conversation to the autosaver.
func (m *Model) commit() {
	if m.saver == nil {
		return
	}
	if err := m.saver.Commit(m.conv); err != nil {
		m.logger.Warn("autosave commit failed", "conversation", m.conv.ID, "error", err)
		m.status = components.StatusError
		m.notice = "autosave: " + err.Error()
	}
}

// loadOlder mounts the previous page of history when f shows the top of
// what is loaded. The anchor keeps the viewport on the same message.
func (m *Model) loadOlder(f transcript.Frame) (transcript.Frame, bool) {
	if m.hidden == 0 || f.ScrollOffset > 0 {
		return f, false
	}
	n := min(m.opts.HistoryPage, m.hidden)
	start := m.hidden - n
	older := m.conv.Messages[start:m.hidden]
	m.hidden = start
	m.logger.Debug("loading older messages", "count", n, "remaining", m.hidden)
	return m.driver.Prepend(itemsOf(older)...), true
}
