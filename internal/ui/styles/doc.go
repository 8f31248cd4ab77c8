// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the lipgloss theme for the transcript view.

Colors are AdaptiveColor values (colors.go). A Theme (theme.go) pairs them
with the terminal's termenv color profile and picks matching glamour and
chroma style names, so the markdown renderer and code highlighter agree
with the rest of the UI.

# Usage

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.Apply()
	box := theme.RoleStyle(msg.Role, msg.IsSuccess).Render(body)
*/
package styles
