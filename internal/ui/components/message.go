// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/ui/styles"
	"github.com/PointerLife/openbook/internal/util"
)

// =============================================================================
// MESSAGE RENDERER
// =============================================================================

// RenderOptions controls optional message decorations.
type RenderOptions struct {
	ShowTimestamps bool
	ShowStats      bool
}

// Rendered is a message laid out for one width. Height is the number of
// terminal lines, trailing separator included.
type Rendered struct {
	Lines  []string
	Height int
}

// Renderer lays out message snapshots. Safe for concurrent use; render
// commands call it from their own goroutines.
type Renderer struct {
	theme *styles.Theme
	md    *Markdown
	opts  RenderOptions
}

// NewRenderer creates a renderer for theme.
func NewRenderer(theme *styles.Theme, opts RenderOptions) *Renderer {
	return &Renderer{
		theme: theme,
		md:    NewMarkdown(theme.GlamourStyle()),
		opts:  opts,
	}
}

// Render lays out s at the given total width.
func (r *Renderer) Render(s model.Snapshot, width int) Rendered {
	if width < 12 {
		width = 12
	}
	// Left border plus padding.
	inner := width - 2

	var body []string
	body = append(body, r.header(s, inner))
	for _, part := range s.Parts {
		if block := r.renderPart(part, s, inner); block != "" {
			body = append(body, block)
		}
	}
	if len(s.Parts) == 0 && s.IsStreaming {
		body = append(body, r.theme.Pending.Render("..."))
	}
	if r.opts.ShowStats && s.Stats != "" && !s.IsStreaming {
		body = append(body, r.theme.Stats.Render(util.TruncateWidth(s.Stats, inner)))
	}

	clip := lipgloss.NewStyle().MaxWidth(inner)
	content := clip.Render(strings.Join(body, "\n"))
	box := r.theme.RoleStyle(s.Role, s.Role != model.RoleTool || s.IsSuccess).Render(content)

	lines := strings.Split(box, "\n")
	lines = append(lines, "")
	return Rendered{Lines: lines, Height: len(lines)}
}

func (r *Renderer) header(s model.Snapshot, width int) string {
	label := s.Role.DisplayName()
	if s.Role == model.RoleTool && s.ToolName != "" {
		label += ": " + s.ToolName
	}
	head := r.theme.RoleLabel.Foreground(r.theme.RoleColor(s.Role)).Render(util.TruncateWidth(label, width))

	if r.opts.ShowTimestamps && !s.Timestamp.IsZero() {
		head += " " + r.theme.Timestamp.Render(s.Timestamp.Format("15:04"))
	}
	if s.IsStreaming {
		head += " " + r.theme.Streaming.Render("●")
	}
	return head
}

func (r *Renderer) renderPart(p model.Part, s model.Snapshot, width int) string {
	switch p.Kind {
	case model.PartCode:
		return CodeBlock{Language: p.Language, Code: p.Text, Width: width}.Render(r.theme)
	case model.PartImage:
		return r.theme.Image.Render(util.TruncateWidth("[image] "+p.Source, width))
	case model.PartToolResult:
		return Plain(StripHTML(p.Text), width)
	default:
		if s.IsStreaming || s.Role == model.RoleUser {
			return Plain(StripHTML(p.Text), width)
		}
		return r.md.Render(p.Text, width)
	}
}
