// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/PointerLife/openbook/internal/ui/styles"
	"github.com/PointerLife/openbook/internal/util"
)

// =============================================================================
// STATUS BAR
// =============================================================================

// Status is what the chat view is doing.
type Status int

const (
	StatusReady Status = iota
	StatusStreaming
	StatusError
)

// String returns the display string for the status.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusStreaming:
		return "Streaming"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Icon returns an ASCII marker for the status.
func (s Status) Icon() string {
	switch s {
	case StatusReady:
		return styles.StatusIndicators.Success
	case StatusStreaming:
		return "~"
	case StatusError:
		return styles.StatusIndicators.Error
	default:
		return "?"
	}
}

// StatusBar is the bottom line of the chat view.
type StatusBar struct {
	Status    Status
	ModelName string
	// Following is true when the view sticks to the newest message.
	Following bool
	Mounted   int
	Total     int
	// PendingWrites is the number of conversations waiting to be saved.
	PendingWrites int
	Message       string
	Width         int
}

// Render lays the bar out at Width, dropping sections from the right
// when space runs out.
func (b StatusBar) Render(theme *styles.Theme) string {
	width := b.Width
	if width < 10 {
		width = 10
	}

	sections := []string{
		b.Status.Icon() + " " + b.Status.String(),
	}
	if b.ModelName != "" {
		sections = append(sections, b.ModelName)
	}
	if b.Following {
		sections = append(sections, "following")
	} else {
		sections = append(sections, "scrolled")
	}
	sections = append(sections, fmt.Sprintf("%d/%d", b.Mounted, b.Total))
	if b.PendingWrites > 0 {
		sections = append(sections, fmt.Sprintf("%s %d unsaved", styles.StatusIndicators.Pending, b.PendingWrites))
	}
	if b.Message != "" {
		sections = append(sections, b.Message)
	}

	// Two columns of padding from the style.
	avail := width - 2
	var line string
	for i, s := range sections {
		next := s
		if i > 0 {
			next = line + " | " + s
		}
		if util.StringWidth(next) > avail {
			if i == 0 {
				line = util.TruncateWidth(s, avail)
			}
			break
		}
		line = next
	}

	style := theme.StatusBar
	if b.Status == StatusError {
		style = style.Foreground(styles.Rose)
	}
	return style.Render(util.PadRight(line, avail))
}

// ScrollHint is shown above the input when newer messages are below.
func ScrollHint(theme *styles.Theme, newer int) string {
	if newer <= 0 {
		return ""
	}
	noun := "messages"
	if newer == 1 {
		noun = "message"
	}
	return theme.Jump.Render(fmt.Sprintf("%d new %s | C-End to jump", newer, noun))
}

// HelpLine lists key bindings compactly.
func HelpLine(theme *styles.Theme, pairs [][2]string, width int) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p[0]+" "+p[1])
	}
	return theme.Help.Render(util.TruncateWidth(strings.Join(parts, "  "), width))
}
