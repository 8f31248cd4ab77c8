// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the chat view of the openbook TUI.

The view shows one conversation through a transcript.Driver. The driver
decides which messages are mounted; the view renders exactly those, off
the update loop, and reports each render's line count back as the
message's measured height.

# Render Cycle

Every input that changes the transcript (a resize, a scroll, a streamed
token batch, older history being loaded) produces a transcript.Frame.
applyFrame then:

 1. drops the rendered lines of every id in Frame.Unmount
 2. starts one render command per Frame.Mount placement, tagged with the
    frame generation and the current width
 3. keeps the frame for View

A finished render arrives as heightMeasuredMsg and is handed to
Driver.OnHeightMeasured. Renders for an older generation still correct the
layout; one relayoutMsg then recomputes the frame for the whole batch.
Renders for another width are dropped.

# Streaming

Replies stream through a StreamingBuffer that caps content versions at
the configured frame rate. The streaming message is subscribed in the
driver so it stays mounted wherever the user scrolls. Streaming text is
wrapped plainly; markdown rendering happens once the reply is final.

# History

Only the newest page of a long conversation is handed to the driver at
first. Reaching the top of the transcript prepends the next older page;
the scroll anchor keeps the message the user was reading in place.

# Key Bindings

  - Enter: send
  - Alt+Enter / Ctrl+J: newline
  - Ctrl+Up/Down, PgUp/PgDn, mouse wheel: scroll
  - Ctrl+Home: oldest (loads older history)
  - Ctrl+End: newest (resumes following)
  - Esc: stop the reply
  - Ctrl+G: help
  - Ctrl+C / Ctrl+Q: quit
*/
package chat
