// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	// Seq orders messages within a conversation, including prepended history.
	Seq int `json:"seq"`

	// Content
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`

	// Streaming state (not persisted)
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	IsStreaming   bool `json:"-"`
	streamContent strings.Builder

	// version changes with every content change; see Version.
	version uint64

	parts        []Part
	partsVersion uint64
	partsValid   bool

	// Token statistics
	TokenCount int `json:"token_count,omitempty"`

	// For tool messages
	ToolName   string `json:"tool_name,omitempty"`
	ToolInput  string `json:"tool_input,omitempty"`
	ToolResult string `json:"tool_result,omitempty"`
	IsSuccess  bool   `json:"is_success,omitempty"`

	// Performance metrics (for assistant messages)
	TTFT          time.Duration `json:"ttft_ns,omitempty"`
	TotalDuration time.Duration `json:"total_duration_ns,omitempty"`
	TokensPerSec  float64       `json:"tokens_per_sec,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		version:   1,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new, streaming assistant message.
func NewAssistantMessage() *Message {
	msg := NewMessage(RoleAssistant, "")
	msg.IsStreaming = true
	return msg
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolName string, result string, success bool) *Message {
	msg := NewMessage(RoleTool, result)
	msg.ToolName = toolName
	msg.ToolResult = result
	msg.IsSuccess = success
	return msg
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Version identifies the current content. It changes on every token
// batch, on finalization and on SetContent.
func (m *Message) Version() uint64 {
	return m.version
}

// AppendToken appends a token to a streaming message.
func (m *Message) AppendToken(token string) {
	if m.IsStreaming && token != "" {
		m.streamContent.WriteString(token)
		m.version++
	}
}

// SetContent replaces the content of a finished message.
func (m *Message) SetContent(content string) {
	m.Content = content
	m.version++
}

// FinalizeStream completes streaming and sets statistics.
func (m *Message) FinalizeStream(stats *Statistics) {
	if !m.IsStreaming {
		return
	}

	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.IsStreaming = false
	m.version++

	if stats != nil {
		m.TTFT = stats.TTFT
		m.TotalDuration = stats.TotalDuration
		m.TokenCount = stats.CompletionTokens
		m.TokensPerSec = stats.TokensPerSecond
	}
}

// GetDisplayContent returns the content to display (streaming or final).
func (m *Message) GetDisplayContent() string {
	if m.IsStreaming {
		return m.streamContent.String()
	}
	return m.Content
}

// Parts returns the typed content parts, cached per version.
func (m *Message) Parts() []Part {
	if m.partsValid && m.partsVersion == m.version {
		return m.parts
	}

	var parts []Part
	if m.Role == RoleTool {
		parts = []Part{{Kind: PartToolResult, Text: m.GetDisplayContent()}}
	} else {
		parts = ParseParts(m.GetDisplayContent())
	}
	for _, src := range m.Images {
		parts = append(parts, Part{Kind: PartImage, Source: src})
	}

	m.parts = parts
	m.partsVersion = m.version
	m.partsValid = true
	return parts
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.GetDisplayContent(), "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.streamContent.Len() == 0 && len(m.Images) == 0
}

// EstimateTokens gives a rough estimate of token count.
// Uses the approximation of ~4 characters per token.
func (m *Message) EstimateTokens() int {
	content := m.GetDisplayContent()
	return (len(content) + 3) / 4
}

// FormatStats returns a formatted string of message statistics.
func (m *Message) FormatStats() string {
	if m.Role != RoleAssistant || m.TotalDuration == 0 {
		return ""
	}
	return formatStats(m.TotalDuration, m.TokenCount, m.TokensPerSec, m.TTFT)
}

// Snapshot is an immutable copy of a message, safe to hand to other
// goroutines.
type Snapshot struct {
	ID          string
	Role        Role
	Seq         int
	Version     uint64
	Content     string
	Parts       []Part
	IsStreaming bool
	Timestamp   time.Time
	ToolName    string
	IsSuccess   bool
	Stats       string
}

// Snapshot captures the current state of the message.
func (m *Message) Snapshot() Snapshot {
	parts := m.Parts()
	return Snapshot{
		ID:          m.ID,
		Role:        m.Role,
		Seq:         m.Seq,
		Version:     m.version,
		Content:     m.GetDisplayContent(),
		Parts:       append([]Part(nil), parts...),
		IsStreaming: m.IsStreaming,
		Timestamp:   m.Timestamp,
		ToolName:    m.ToolName,
		IsSuccess:   m.IsSuccess,
		Stats:       m.FormatStats(),
	}
}

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Statistics holds timing and token count information for a generation.
type Statistics struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	PromptTokens     int
	CompletionTokens int

	// Derived metrics (computed on Finalize)
	TTFT            time.Duration
	TotalDuration   time.Duration
	TokensPerSecond float64
}

// NewStatistics creates a new Statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
	}
}

// RecordFirstToken records when the first token was received.
func (s *Statistics) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes the final statistics.
func (s *Statistics) Finalize(tokenCount int) {
	s.EndTime = time.Now()
	s.CompletionTokens = tokenCount
	s.TotalDuration = s.EndTime.Sub(s.StartTime)

	if s.TotalDuration > 0 {
		s.TokensPerSecond = float64(tokenCount) / s.TotalDuration.Seconds()
	}
}

// Format returns a formatted string of the statistics.
func (s *Statistics) Format() string {
	return formatStats(s.TotalDuration, s.CompletionTokens, s.TokensPerSecond, s.TTFT)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}

// formatStats renders "2.5s | 128 tokens | 51.2 tok/s | TTFT 234ms".
func formatStats(total time.Duration, tokens int, tps float64, ttft time.Duration) string {
	var dur string
	if total < time.Second {
		dur = fmt.Sprintf("%dms", total.Milliseconds())
	} else {
		dur = fmt.Sprintf("%.1fs", total.Seconds())
	}
	return fmt.Sprintf("%s | %d tokens | %.1f tok/s | TTFT %dms", dur, tokens, tps, ttft.Milliseconds())
}
