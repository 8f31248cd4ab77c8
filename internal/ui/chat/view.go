// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/PointerLife/openbook/internal/transcript"
	"github.com/PointerLife/openbook/internal/ui/components"
)

// =============================================================================
// MAIN RENDER
// =============================================================================

// View renders the chat view.
// Layout: transcript (viewport) + hint (1 line) + input (border + 3 lines) + status (1 line)
// Total height must equal m.height; chromeHeight in model.go carries the
// non-transcript part.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderTranscript(),
		m.renderHint(),
		m.theme.Input.Render(m.input.View()),
		m.renderStatusBar(),
	)
}

// renderTranscript paints mounted messages at their layout offsets.
// Messages whose render has not come back yet show as blank rows of their
// estimated height, so nothing below them moves when it arrives.
func (m Model) renderTranscript() string {
	vh := m.viewportHeight()
	rows := make([]string, vh)
	top := m.frame.ScrollOffset

	for _, p := range m.frame.Mounted {
		r, ok := m.rendered[p.ID]
		if !ok || r.width != m.width {
			continue
		}
		for j := 0; j < p.Height && j < len(r.lines); j++ {
			row := p.Offset + j - top
			if row < 0 {
				continue
			}
			if row >= vh {
				break
			}
			rows[row] = r.lines[j]
		}
	}
	return strings.Join(rows, "\n")
}

// renderHint shows key help when toggled, otherwise how many messages sit
// below the viewport while the view is anchored.
func (m Model) renderHint() string {
	if m.showHelp {
		return components.HelpLine(m.theme, m.keys.helpPairs(), m.width)
	}
	if m.frame.Mode != transcript.Anchored {
		return ""
	}
	return components.ScrollHint(m.theme, m.newerBelow())
}

// newerBelow counts messages entirely below the last visible row.
func (m Model) newerBelow() int {
	bottom := m.frame.ScrollOffset + m.frame.ViewportHeight
	last := -1
	for _, p := range m.frame.Mounted {
		if p.Sticky {
			continue
		}
		if p.Offset < bottom && p.Index > last {
			last = p.Index
		}
	}
	if last < 0 {
		return 0
	}
	return m.driver.Len() - 1 - last
}

func (m Model) renderStatusBar() string {
	return components.StatusBar{
		Status:        m.status,
		ModelName:     m.opts.ModelName,
		Following:     m.frame.Mode == transcript.Following,
		Mounted:       len(m.frame.Mounted),
		Total:         len(m.conv.Messages),
		PendingWrites: m.pendingWrites,
		Message:       m.notice,
		Width:         m.width,
	}.Render(m.theme)
}
