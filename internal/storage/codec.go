// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/util"
)

// ConversationPrefix namespaces conversation keys within a backend.
const ConversationPrefix = "conversations/"

// ConversationKey returns the persistence key for a conversation.
func ConversationKey(id string) string {
	return ConversationPrefix + id
}

// =============================================================================
// STORED TYPES
// =============================================================================

// StoredConversation is the on-disk form of a conversation.
type StoredConversation struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	NextSeq      int       `json:"next_seq"`

	Messages []StoredMessage `json:"messages"`

	TokensUsed int `json:"tokens_used,omitempty"`
}

// StoredMessage is the on-disk form of a message.
type StoredMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user", "assistant", "system", "tool"
	Seq       int       `json:"seq"`
	Content   string    `json:"content"`
	Images    []string  `json:"images,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Statistics (for assistant messages)
	TokenCount   int     `json:"token_count,omitempty"`
	DurationMs   int64   `json:"duration_ms,omitempty"`
	TokensPerSec float64 `json:"tokens_per_sec,omitempty"`
	TTFTMs       int64   `json:"ttft_ms,omitempty"`

	// Tool information
	ToolName   string `json:"tool_name,omitempty"`
	ToolInput  string `json:"tool_input,omitempty"`
	ToolResult string `json:"tool_result,omitempty"`
	IsSuccess  bool   `json:"is_success,omitempty"`
}

// ConversationMeta is the listing view of a stored conversation.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// =============================================================================
// ENCODE / DECODE
// =============================================================================

// FromConversation converts a live conversation. A message that is still
// streaming is captured with the content received so far.
func FromConversation(conv *model.Conversation) *StoredConversation {
	sc := &StoredConversation{
		ID:           conv.ID,
		Summary:      conv.Title,
		Model:        conv.Model,
		SystemPrompt: conv.SystemPrompt,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		NextSeq:      conv.NextSeq,
		TokensUsed:   conv.TokensUsed,
		Messages:     make([]StoredMessage, 0, len(conv.Messages)),
	}
	for _, m := range conv.Messages {
		sc.Messages = append(sc.Messages, StoredMessage{
			ID:           m.ID,
			Role:         string(m.Role),
			Seq:          m.Seq,
			Content:      m.GetDisplayContent(),
			Images:       append([]string(nil), m.Images...),
			Timestamp:    m.Timestamp,
			TokenCount:   m.TokenCount,
			DurationMs:   m.TotalDuration.Milliseconds(),
			TokensPerSec: m.TokensPerSec,
			TTFTMs:       m.TTFT.Milliseconds(),
			ToolName:     m.ToolName,
			ToolInput:    m.ToolInput,
			ToolResult:   m.ToolResult,
			IsSuccess:    m.IsSuccess,
		})
	}
	if sc.Summary == "" {
		sc.Summary = sc.generateSummary()
	}
	return sc
}

// ToConversation rebuilds a live conversation. Every message starts at
// content version 1.
func (c *StoredConversation) ToConversation() *model.Conversation {
	conv := model.NewConversationWithModel(c.Model)
	conv.ID = c.ID
	conv.Title = c.Summary
	conv.SystemPrompt = c.SystemPrompt
	conv.CreatedAt = c.CreatedAt
	conv.UpdatedAt = c.UpdatedAt
	conv.TokensUsed = c.TokensUsed

	next := c.NextSeq
	for _, sm := range c.Messages {
		m := model.NewMessage(model.Role(sm.Role), sm.Content)
		m.ID = sm.ID
		m.Seq = sm.Seq
		m.Timestamp = sm.Timestamp
		m.Images = append([]string(nil), sm.Images...)
		m.TokenCount = sm.TokenCount
		m.TotalDuration = time.Duration(sm.DurationMs) * time.Millisecond
		m.TokensPerSec = sm.TokensPerSec
		m.TTFT = time.Duration(sm.TTFTMs) * time.Millisecond
		m.ToolName = sm.ToolName
		m.ToolInput = sm.ToolInput
		m.ToolResult = sm.ToolResult
		m.IsSuccess = sm.IsSuccess
		conv.Messages = append(conv.Messages, m)
		if sm.Seq >= next {
			next = sm.Seq + 1
		}
	}
	conv.NextSeq = next
	return conv
}

// EncodeConversation produces the payload stored under ConversationKey.
func EncodeConversation(conv *model.Conversation) ([]byte, error) {
	data, err := json.Marshal(FromConversation(conv))
	if err != nil {
		return nil, fmt.Errorf("encode conversation %s: %w", conv.ID, err)
	}
	return data, nil
}

// DecodeStored parses a stored payload without building live messages.
func DecodeStored(data []byte) (*StoredConversation, error) {
	var sc StoredConversation
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if sc.ID == "" {
		return nil, fmt.Errorf("decode conversation: missing id")
	}
	return &sc, nil
}

// DecodeConversation parses a payload written by EncodeConversation.
func DecodeConversation(data []byte) (*model.Conversation, error) {
	sc, err := DecodeStored(data)
	if err != nil {
		return nil, err
	}
	return sc.ToConversation(), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// generateSummary creates a summary from the first user message.
func (c *StoredConversation) generateSummary() string {
	for _, msg := range c.Messages {
		if msg.Role == "user" && msg.Content != "" {
			content := util.TruncateRunes(msg.Content, 50)
			content = strings.ReplaceAll(content, "\n", " ")
			return strings.ReplaceAll(content, "\r", "")
		}
	}
	return "New conversation"
}

// Meta returns the listing view.
func (c *StoredConversation) Meta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Summary:      c.Summary,
		Model:        c.Model,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
		Preview:      c.Preview(),
	}
}

// Preview returns the first user message, truncated.
func (c *StoredConversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == "user" && msg.Content != "" {
			return util.TruncateRunes(strings.ReplaceAll(msg.Content, "\n", " "), 80)
		}
	}
	return ""
}

// ExportMarkdown renders the conversation with role labels and timestamps.
func (c *StoredConversation) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# " + c.Summary + "\n\n")
	sb.WriteString("Created: " + c.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range c.Messages {
		role := model.Role(msg.Role).DisplayName()
		sb.WriteString("**" + role + "** (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}
