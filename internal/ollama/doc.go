// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama is the streaming chat client that feeds live assistant
// replies into the transcript.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama API
//   - Message: chat turn sent with a request
//   - StreamChunk: one decoded piece of a streamed reply
//   - StreamReader: NDJSON decoder over a response body
//
// # Usage
//
//	client := ollama.NewClient(ollama.DefaultConfig())
//	err := client.ChatStream(ctx, "", msgs, func(c ollama.StreamChunk) {
//	    fmt.Print(c.Content)
//	})
package ollama
