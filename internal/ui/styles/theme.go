// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/PointerLife/openbook/internal/model"
)

// Theme names accepted by NewTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
	ThemeAuto  = "auto"
)

// Theme holds the styled components for the transcript view.
type Theme struct {
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Tool      lipgloss.Style
	ToolError lipgloss.Style

	RoleLabel lipgloss.Style
	Timestamp lipgloss.Style
	Stats     lipgloss.Style
	Streaming lipgloss.Style

	// ==========================================================================
	// CONTENT STYLES
	// ==========================================================================

	CodeBlock  lipgloss.Style
	CodeHeader lipgloss.Style
	Image      lipgloss.Style
	Pending    lipgloss.Style

	// ==========================================================================
	// CHROME
	// ==========================================================================

	StatusBar lipgloss.Style
	StatusKey lipgloss.Style
	Input     lipgloss.Style
	Help      lipgloss.Style
	Error     lipgloss.Style
	Jump      lipgloss.Style
}

// NewTheme builds a theme for name using the detected color profile.
// Unknown names fall back to auto detection.
func NewTheme(name string) *Theme {
	return NewThemeWithProfile(name, termenv.ColorProfile())
}

// NewThemeWithProfile builds a theme for an explicit color profile.
func NewThemeWithProfile(name string, profile termenv.Profile) *Theme {
	t := &Theme{Name: name, ColorProfile: profile}
	switch name {
	case ThemeDark:
		t.IsDark = true
	case ThemeLight:
		t.IsDark = false
	default:
		t.Name = ThemeAuto
		t.IsDark = termenv.HasDarkBackground()
	}
	t.initStyles()
	return t
}

// Apply makes the theme's profile and background the lipgloss defaults.
func (t *Theme) Apply() {
	lipgloss.SetColorProfile(t.ColorProfile)
	lipgloss.SetHasDarkBackground(t.IsDark)
}

func (t *Theme) initStyles() {
	bubble := func(border lipgloss.TerminalColor) lipgloss.Style {
		return lipgloss.NewStyle().
			BorderStyle(lipgloss.ThickBorder()).
			BorderLeft(true).
			BorderForeground(border).
			PaddingLeft(1)
	}

	t.User = bubble(UserBorder)
	t.Assistant = bubble(AssistantBorder)
	t.System = bubble(SystemBorder)
	t.Tool = bubble(ToolBorder)
	t.ToolError = bubble(Rose)

	t.RoleLabel = lipgloss.NewStyle().Bold(true)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)
	t.Stats = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)
	t.Streaming = lipgloss.NewStyle().Foreground(Amber)

	t.CodeBlock = lipgloss.NewStyle().
		Background(CodeBg).
		Padding(0, 1)
	t.CodeHeader = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)
	t.Image = lipgloss.NewStyle().
		Foreground(Cyan).
		Underline(true)
	t.Pending = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.StatusKey = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted)
	t.Error = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Jump = lipgloss.NewStyle().
		Foreground(SurfaceDim).
		Background(Purple).
		Padding(0, 1)
}

// RoleStyle returns the bubble style for a message role.
func (t *Theme) RoleStyle(role model.Role, success bool) lipgloss.Style {
	switch role {
	case model.RoleUser:
		return t.User
	case model.RoleSystem:
		return t.System
	case model.RoleTool:
		if !success {
			return t.ToolError
		}
		return t.Tool
	default:
		return t.Assistant
	}
}

// RoleColor returns the label color for a role.
func (t *Theme) RoleColor(role model.Role) lipgloss.TerminalColor {
	switch role {
	case model.RoleUser:
		return Cyan
	case model.RoleSystem:
		return Amber
	case model.RoleTool:
		return Emerald
	default:
		return Purple
	}
}

// GlamourStyle names the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}

// ChromaStyle names the chroma style used for code blocks.
func (t *Theme) ChromaStyle() string {
	if t.IsDark {
		return "monokai"
	}
	return "github"
}

// ChromaFormatter names the chroma terminal formatter for the profile.
func (t *Theme) ChromaFormatter() string {
	switch t.ColorProfile {
	case termenv.TrueColor:
		return "terminal16m"
	case termenv.ANSI256:
		return "terminal256"
	case termenv.ANSI:
		return "terminal16"
	default:
		return "noop"
	}
}
