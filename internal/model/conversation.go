// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/PointerLife/openbook/internal/ollama"
)

// MaxMessages is the maximum number of messages to keep in conversation history.
// When exceeded, old messages are pruned to prevent unbounded memory growth.
const MaxMessages = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages, ordered by Seq.
	Messages []*Message `json:"messages"`
	// NextSeq is the sequence index the next appended message gets.
	NextSeq int `json:"next_seq"`

	// Model configuration
	Model string `json:"model"`

	// Context tracking
	TokensUsed int `json:"tokens_used"`
	MaxTokens  int `json:"max_tokens"`

	// System prompt (optional)
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        generateConversationID(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
		MaxTokens: 128000, // Default context window
	}
}

// NewConversationWithModel creates a new conversation with a specific model.
func NewConversationWithModel(model string) *Conversation {
	conv := NewConversation()
	conv.Model = model
	return conv
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and assigns it the next sequence index.
func (c *Conversation) AddMessage(msg *Message) {
	msg.Seq = c.NextSeq
	c.NextSeq++
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTokenEstimate()
	c.updateTitle()
	c.pruneOldMessages()
}

// Prepend inserts older history before the first message. The messages
// get sequence indices below the current first one, in the given order.
func (c *Conversation) Prepend(msgs ...*Message) {
	if len(msgs) == 0 {
		return
	}
	first := 0
	if len(c.Messages) > 0 {
		first = c.Messages[0].Seq
	}
	for i, msg := range msgs {
		msg.Seq = first - len(msgs) + i
	}
	c.Messages = append(append([]*Message(nil), msgs...), c.Messages...)
	c.updateTokenEstimate()
	c.updateTitle()
}

// AddUserMessage creates and adds a user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and adds a streaming assistant message.
func (c *Conversation) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	c.AddMessage(msg)
	return msg
}

// GetLastMessage returns the most recent message, or nil if empty.
func (c *Conversation) GetLastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// AppendToLast appends a token to the last (streaming) message.
func (c *Conversation) AppendToLast(token string) {
	last := c.GetLastMessage()
	if last != nil && last.IsStreaming {
		last.AppendToken(token)
	}
}

// FinalizeLast finalizes the last streaming message with statistics.
func (c *Conversation) FinalizeLast(stats *Statistics) {
	last := c.GetLastMessage()
	if last != nil && last.IsStreaming {
		last.FinalizeStream(stats)
		c.UpdatedAt = time.Now()
		c.updateTokenEstimate()
	}
}

// GetMessageByID returns a message by its ID.
func (c *Conversation) GetMessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// OLLAMA CONVERSION
// =============================================================================

// ToOllamaMessages converts the conversation to Ollama message format.
// Tool results and empty messages are skipped.
func (c *Conversation) ToOllamaMessages() []ollama.Message {
	messages := make([]ollama.Message, 0, len(c.Messages)+1)

	if c.SystemPrompt != "" {
		messages = append(messages, ollama.NewSystemMessage(c.SystemPrompt))
	}

	for _, msg := range c.Messages {
		content := msg.GetDisplayContent()
		if content == "" {
			continue
		}
		switch msg.Role {
		case RoleUser, RoleAssistant, RoleSystem:
			messages = append(messages, ollama.Message{Role: string(msg.Role), Content: content})
		}
	}

	return messages
}

// =============================================================================
// TOKEN TRACKING
// =============================================================================

// EstimateTokens estimates the total token count of the conversation.
func (c *Conversation) EstimateTokens() int {
	total := 0
	if c.SystemPrompt != "" {
		total += (len(c.SystemPrompt) + 3) / 4
	}
	for _, msg := range c.Messages {
		// ~4 tokens of structure per message
		total += msg.EstimateTokens() + 4
	}
	return total
}

func (c *Conversation) updateTokenEstimate() {
	c.TokensUsed = c.EstimateTokens()
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(50)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	return "conv_" + uuid.NewString()
}

// pruneOldMessages removes old messages when conversation history exceeds MaxMessages.
// System messages are kept; the oldest other messages go first. Order is
// preserved.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}

	others := 0
	for _, msg := range c.Messages {
		if msg.Role != RoleSystem {
			others++
		}
	}
	drop := others - MaxMessages
	if drop <= 0 {
		return
	}

	kept := make([]*Message, 0, len(c.Messages)-drop)
	for _, msg := range c.Messages {
		if msg.Role != RoleSystem && drop > 0 {
			drop--
			continue
		}
		kept = append(kept, msg)
	}
	c.Messages = kept
}
