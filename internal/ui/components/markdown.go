// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"

	"github.com/PointerLife/openbook/internal/util"
)

var (
	htmlTagPattern = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*(\s[^<>]*)?/?>|<!--`)
	stripPolicy    = bluemonday.StrictPolicy()
)

// StripHTML removes raw HTML tags from model output. Text without
// anything tag-shaped is returned unchanged.
func StripHTML(s string) string {
	if !htmlTagPattern.MatchString(s) {
		return s
	}
	return html.UnescapeString(stripPolicy.Sanitize(s))
}

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// Markdown renders prose parts through glamour. A TermRenderer is not
// safe for concurrent use, so one is kept per width behind a mutex.
type Markdown struct {
	mu        sync.Mutex
	style     string
	renderers map[int]*glamour.TermRenderer
}

// NewMarkdown creates a renderer for a glamour standard style name.
func NewMarkdown(style string) *Markdown {
	return &Markdown{style: style, renderers: make(map[int]*glamour.TermRenderer)}
}

// Render returns the text wrapped to width. On any glamour failure the
// plain wrapped text is returned instead.
func (m *Markdown) Render(text string, width int) string {
	text = StripHTML(text)
	if width < 1 {
		width = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.renderer(width)
	if err != nil {
		return Plain(text, width)
	}
	out, err := r.Render(text)
	if err != nil {
		return Plain(text, width)
	}
	return trimBlankLines(out)
}

func (m *Markdown) renderer(width int) (*glamour.TermRenderer, error) {
	if r, ok := m.renderers[width]; ok {
		return r, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	// Resizes leave old widths behind; keep the map small.
	if len(m.renderers) >= 4 {
		clear(m.renderers)
	}
	m.renderers[width] = r
	return r, nil
}

// Plain wraps text without markdown styling. Streaming content uses it so
// half-written syntax does not flicker between styles.
func Plain(text string, width int) string {
	return strings.Join(util.Wrap(strings.TrimRight(text, "\n"), width), "\n")
}

// trimBlankLines drops the blank margin lines glamour puts around a document.
func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(stripANSI(lines[start])) == "" {
		start++
	}
	for end > start && strings.TrimSpace(stripANSI(lines[end-1])) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
