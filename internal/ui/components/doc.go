// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components renders transcript messages and the chat chrome.

# Key Types

  - Renderer: lays a model.Snapshot out as terminal lines at a width
  - CodeBlock: chroma-highlighted fenced code, language from go-enry
  - Markdown: glamour renderer per width, raw HTML stripped by bluemonday
  - StatusBar: bottom line with follow state and unsaved writes

Rendering is pure with respect to the snapshot and width, so the chat
view can run it in a tea.Cmd goroutine and report the resulting height.
Streaming messages are wrapped as plain text; markdown styling is applied
once the reply is complete.

# Usage

	r := components.NewRenderer(theme, components.RenderOptions{ShowStats: true})
	out := r.Render(msg.Snapshot(), width)
	driver.OnHeightMeasured(gen, msg.ID, msg.Version(), out.Height)
*/
package components
