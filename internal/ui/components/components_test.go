// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/ui/styles"
)

func plainTheme() *styles.Theme {
	return styles.NewThemeWithProfile(styles.ThemeDark, termenv.Ascii)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "Go", DetectLanguage("go", ""))
	assert.Equal(t, "JavaScript", DetectLanguage("javascript", "let x = 1"))
	assert.Equal(t, "", DetectLanguage("", "   "))
	assert.Equal(t, "", DetectLanguage("not-a-language", ""))
}

func TestCodeBlock_LineCountAndWidth(t *testing.T) {
	code := "package main\n\nfunc main() { println(\"" + strings.Repeat("x", 80) + "\") }"
	out := CodeBlock{Language: "go", Code: code, Width: 30}.Render(plainTheme())

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4, "header plus three source lines")
	assert.Contains(t, lines[0], "Go")
	for _, l := range lines {
		assert.LessOrEqual(t, lipgloss.Width(l), 30)
	}
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "a & b < c", StripHTML("a & b < c"))
	assert.Equal(t, "hello world", StripHTML("hello <b>world</b>"))

	out := StripHTML("x <script>alert(1)</script> y")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "x ")
}

func TestPlain_Wraps(t *testing.T) {
	assert.Equal(t, "one two\nthree", Plain("one two three\n", 8))
}

func TestMarkdown_RendersAndCachesPerWidth(t *testing.T) {
	md := NewMarkdown("notty")
	out := md.Render("# Title\n\nsome *text* here", 40)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "text")
	assert.NotEqual(t, "", strings.TrimSpace(strings.SplitN(out, "\n", 2)[0]))

	md.Render("again", 40)
	md.Render("other", 50)
	assert.Len(t, md.renderers, 2)
}

func TestRenderer_UserMessage(t *testing.T) {
	r := NewRenderer(plainTheme(), RenderOptions{})
	msg := model.NewMessage(model.RoleUser, "hello there")

	out := r.Render(msg.Snapshot(), 40)
	require.Equal(t, len(out.Lines), out.Height)
	assert.Contains(t, out.Lines[0], "You")
	assert.Contains(t, strings.Join(out.Lines, "\n"), "hello there")
	assert.Equal(t, "", out.Lines[len(out.Lines)-1], "trailing separator line")
	for _, l := range out.Lines {
		assert.LessOrEqual(t, lipgloss.Width(l), 40)
	}
}

func TestRenderer_StreamingPlaceholder(t *testing.T) {
	r := NewRenderer(plainTheme(), RenderOptions{})
	msg := model.NewMessage(model.RoleAssistant, "")
	msg.IsStreaming = true

	out := r.Render(msg.Snapshot(), 40)
	joined := strings.Join(out.Lines, "\n")
	assert.Contains(t, out.Lines[0], "●")
	assert.Contains(t, joined, "...")
}

func TestRenderer_HeightGrowsWithContent(t *testing.T) {
	r := NewRenderer(plainTheme(), RenderOptions{})
	short := r.Render(model.NewMessage(model.RoleUser, "hi").Snapshot(), 30)
	long := r.Render(model.NewMessage(model.RoleUser, strings.Repeat("word ", 60)).Snapshot(), 30)
	assert.Greater(t, long.Height, short.Height)
}

func TestRenderer_CodeAndImageParts(t *testing.T) {
	r := NewRenderer(plainTheme(), RenderOptions{})
	msg := model.NewMessage(model.RoleUser, "look:\n```go\nx := 1\n```\n![chart](chart.png)")

	joined := strings.Join(r.Render(msg.Snapshot(), 60).Lines, "\n")
	assert.Contains(t, joined, "x := 1")
	assert.Contains(t, joined, "[image] chart.png")
}

func TestRenderer_TimestampsOptional(t *testing.T) {
	msg := model.NewMessage(model.RoleUser, "hi")
	stamp := msg.Timestamp.Format("15:04")

	without := NewRenderer(plainTheme(), RenderOptions{}).Render(msg.Snapshot(), 40)
	with := NewRenderer(plainTheme(), RenderOptions{ShowTimestamps: true}).Render(msg.Snapshot(), 40)
	assert.NotContains(t, without.Lines[0], stamp)
	assert.Contains(t, with.Lines[0], stamp)
}

func TestStatusBar_Render(t *testing.T) {
	theme := plainTheme()
	bar := StatusBar{
		Status:        StatusReady,
		ModelName:     "qwen",
		Following:     true,
		Mounted:       3,
		Total:         10,
		PendingWrites: 2,
		Width:         80,
	}
	out := bar.Render(theme)
	assert.Contains(t, out, "Ready")
	assert.Contains(t, out, "following")
	assert.Contains(t, out, "3/10")
	assert.Contains(t, out, "2 unsaved")
	assert.Equal(t, 80, lipgloss.Width(out))
}

func TestStatusBar_NarrowDropsSections(t *testing.T) {
	bar := StatusBar{Status: StatusStreaming, ModelName: "a-very-long-model-name", Width: 20}
	out := bar.Render(plainTheme())
	assert.Contains(t, out, "Streaming")
	assert.NotContains(t, out, "a-very-long-model-name")
	assert.Equal(t, 20, lipgloss.Width(out))
}

func TestScrollHint(t *testing.T) {
	theme := plainTheme()
	assert.Equal(t, "", ScrollHint(theme, 0))
	assert.Contains(t, ScrollHint(theme, 1), "1 new message ")
	assert.Contains(t, ScrollHint(theme, 3), "3 new messages")
}
