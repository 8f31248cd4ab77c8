// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: ordered messages with sequence indices and metadata
//   - Message: one message; its Version changes with every content change
//   - Part: a typed piece of message content (text, code, image, tool result)
//   - Role: Message role enumeration (user, assistant, system, tool)
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.AddUserMessage("Hello!")
//	reply := conv.AddAssistantMessage()
//	reply.AppendToken("Hi")
//	reply.FinalizeStream(nil)
//
// Messages are mutated only by the goroutine that owns the conversation.
// Anything crossing a goroutine boundary takes a Snapshot.
package model
