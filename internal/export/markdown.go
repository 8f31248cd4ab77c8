// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/PointerLife/openbook/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown with YAML frontmatter.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown format.
func (e *MarkdownExporter) Export(conv *storage.StoredConversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	var sb strings.Builder
	exported := e.options.exportedAt()

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(conv.Summary))
		fmt.Fprintf(&sb, "id: %s\n", conv.ID)
		fmt.Fprintf(&sb, "model: %s\n", escapeYAML(conv.Model))
		fmt.Fprintf(&sb, "date: %s\n", conv.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", conv.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(conv.Messages))
		if conv.TokensUsed > 0 {
			fmt.Fprintf(&sb, "tokens: %d\n", conv.TokensUsed)
		}
		fmt.Fprintf(&sb, "exported: %s\n", exported.Format(time.RFC3339))
		sb.WriteString("generator: openbook\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(conv.Summary))

	if conv.SystemPrompt != "" {
		sb.WriteString("> " + strings.ReplaceAll(strings.TrimSpace(conv.SystemPrompt), "\n", "\n> ") + "\n\n")
	}

	for i := range conv.Messages {
		msg := &conv.Messages[i]
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", roleLabel(msg.Role), formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg.Role))
		}

		content := strings.TrimSpace(msg.Content)
		if content == "" && msg.Role == "tool" {
			content = e.formatToolMessage(msg)
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if msg.Role == "assistant" && e.options.IncludeMetadata {
			if parts := statParts(msg); len(parts) > 0 {
				fmt.Fprintf(&sb, "<sub>%s</sub>\n\n", strings.Join(parts, " | "))
			}
		}

		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "\n---\n\n*Exported from openbook on %s*\n",
		exported.Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

func (e *MarkdownExporter) FileExtension() string { return ".md" }

func (e *MarkdownExporter) MimeType() string { return "text/markdown" }

// formatToolMessage formats a tool message with input/output.
func (e *MarkdownExporter) formatToolMessage(msg *storage.StoredMessage) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "**Tool**: `%s`\n\n", msg.ToolName)

	if msg.ToolInput != "" {
		sb.WriteString("**Input**:\n```\n")
		sb.WriteString(msg.ToolInput)
		sb.WriteString("\n```\n\n")
	}

	if msg.ToolResult != "" {
		status := "[OK]"
		if !msg.IsSuccess {
			status = "[FAIL]"
		}
		fmt.Fprintf(&sb, "**Result** %s:\n```\n", status)
		sb.WriteString(msg.ToolResult)
		sb.WriteString("\n```")
	}

	return sb.String()
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break formatting in headings.
func escapeMarkdown(s string) string {
	return strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	).Replace(s)
}

// escapeYAML quotes values that contain YAML special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.NewReplacer(
			"\\", "\\\\",
			"\"", "\\\"",
			"\n", "\\n",
			"\r", "\\r",
		).Replace(s)
		return "\"" + s + "\""
	}
	return s
}
