// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/PointerLife/openbook/internal/storage"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page. Message
// markdown is rendered with goldmark and sanitized with bluemonday.
type HTMLExporter struct {
	options  *Options
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Theme != "light" {
		o.Theme = "dark"
	}

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[\w+#-]+$`)).OnElements("code")

	return &HTMLExporter{
		options: &o,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		policy: policy,
	}
}

// Export converts a conversation to HTML format.
func (e *HTMLExporter) Export(conv *storage.StoredConversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	var sb strings.Builder
	title := html.EscapeString(conv.Summary)

	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", title)
	sb.WriteString("<meta name=\"generator\" content=\"openbook\">\n")
	fmt.Fprintf(&sb, "<meta name=\"date\" content=\"%s\">\n", conv.CreatedAt.Format(time.RFC3339))
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n<div class=\"container\">\n", e.options.Theme)

	if e.options.IncludeMetadata {
		e.renderHeader(&sb, conv)
	}

	sb.WriteString("<main class=\"conversation\">\n")
	for i := range conv.Messages {
		if err := e.renderMessage(&sb, &conv.Messages[i]); err != nil {
			return nil, err
		}
	}
	sb.WriteString("</main>\n")

	fmt.Fprintf(&sb, "<footer class=\"footer\">Exported from <strong>openbook</strong> on %s</footer>\n",
		e.options.exportedAt().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

func (e *HTMLExporter) FileExtension() string { return ".html" }

func (e *HTMLExporter) MimeType() string { return "text/html" }

// =============================================================================
// RENDERING
// =============================================================================

func (e *HTMLExporter) renderHeader(sb *strings.Builder, conv *storage.StoredConversation) {
	sb.WriteString("<header class=\"header\">\n")
	fmt.Fprintf(sb, "<h1>%s</h1>\n", html.EscapeString(conv.Summary))
	sb.WriteString("<div class=\"metadata\">\n")
	fmt.Fprintf(sb, "<span><strong>Model:</strong> %s</span>\n", html.EscapeString(conv.Model))
	fmt.Fprintf(sb, "<span><strong>Created:</strong> %s</span>\n", formatTimestamp(conv.CreatedAt))
	fmt.Fprintf(sb, "<span><strong>Messages:</strong> %d</span>\n", len(conv.Messages))
	if conv.TokensUsed > 0 {
		fmt.Fprintf(sb, "<span><strong>Tokens:</strong> %d</span>\n", conv.TokensUsed)
	}
	sb.WriteString("</div>\n</header>\n")
	if conv.SystemPrompt != "" {
		fmt.Fprintf(sb, "<blockquote class=\"system-prompt\">%s</blockquote>\n", html.EscapeString(conv.SystemPrompt))
	}
}

func (e *HTMLExporter) renderMessage(sb *strings.Builder, msg *storage.StoredMessage) error {
	role := strings.ToLower(msg.Role)
	if role == "" {
		role = "unknown"
	}
	fmt.Fprintf(sb, "<section class=\"message %s-message\" id=\"%s\">\n", html.EscapeString(role), html.EscapeString(msg.ID))

	sb.WriteString("<div class=\"message-header\">")
	fmt.Fprintf(sb, "<span class=\"role-label\">%s</span>", html.EscapeString(roleLabel(msg.Role)))
	if e.options.IncludeTimestamps {
		fmt.Fprintf(sb, "<span class=\"timestamp\">%s</span>", formatShortTimestamp(msg.Timestamp))
	}
	sb.WriteString("</div>\n<div class=\"message-content\">\n")

	if msg.Content == "" && msg.Role == "tool" {
		sb.WriteString(e.formatToolMessage(msg))
	} else {
		body, err := e.renderMarkdown(msg.Content)
		if err != nil {
			return fmt.Errorf("render message %s: %w", msg.ID, err)
		}
		sb.WriteString(body)
	}
	sb.WriteString("</div>\n")

	if msg.Role == "assistant" && e.options.IncludeMetadata {
		if parts := statParts(msg); len(parts) > 0 {
			sb.WriteString("<div class=\"message-stats\">")
			for _, p := range parts {
				fmt.Fprintf(sb, "<span class=\"stat\">%s</span>", html.EscapeString(p))
			}
			sb.WriteString("</div>\n")
		}
	}

	sb.WriteString("</section>\n")
	return nil
}

// renderMarkdown converts message markdown to sanitized HTML.
func (e *HTMLExporter) renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := e.markdown.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return e.policy.Sanitize(buf.String()), nil
}

func (e *HTMLExporter) formatToolMessage(msg *storage.StoredMessage) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "<p><strong>Tool:</strong> <code>%s</code></p>\n", html.EscapeString(msg.ToolName))

	if msg.ToolInput != "" {
		sb.WriteString("<p><strong>Input:</strong></p>\n")
		fmt.Fprintf(&sb, "<pre><code>%s</code></pre>\n", html.EscapeString(msg.ToolInput))
	}

	if msg.ToolResult != "" {
		status, class := "[OK] Success", "success"
		if !msg.IsSuccess {
			status, class = "[FAIL] Error", "error"
		}
		fmt.Fprintf(&sb, "<p><strong>Result</strong> <span class=\"%s\">%s</span>:</p>\n", class, status)
		fmt.Fprintf(&sb, "<pre><code>%s</code></pre>\n", html.EscapeString(msg.ToolResult))
	}

	return sb.String()
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const css = `<style>
* { box-sizing: border-box; }
body { margin: 0; font: 15px/1.6 -apple-system, "Segoe UI", Roboto, sans-serif; }
.dark-theme { --bg: #1a1b26; --fg: #c0caf5; --muted: #565f89; --card: #24283b; --user: #7aa2f7; --assistant: #bb9af7; --code: #16161e; }
.light-theme { --bg: #f5f5f7; --fg: #1f2335; --muted: #6b7089; --card: #ffffff; --user: #2e5cb8; --assistant: #7847bd; --code: #eef0f4; }
body { background: var(--bg); color: var(--fg); }
.container { max-width: 860px; margin: 0 auto; padding: 32px 20px; }
.header h1 { margin: 0 0 8px; }
.metadata { display: flex; flex-wrap: wrap; gap: 16px; color: var(--muted); font-size: 13px; }
.system-prompt { border-left: 3px solid var(--muted); margin: 16px 0; padding: 4px 12px; color: var(--muted); white-space: pre-wrap; }
.message { background: var(--card); border-left: 3px solid var(--muted); border-radius: 6px; margin: 16px 0; padding: 12px 16px; }
.user-message { border-left-color: var(--user); }
.assistant-message { border-left-color: var(--assistant); }
.message-header { display: flex; justify-content: space-between; font-size: 13px; color: var(--muted); }
.role-label { font-weight: 600; }
.user-message .role-label { color: var(--user); }
.assistant-message .role-label { color: var(--assistant); }
pre { background: var(--code); padding: 12px; border-radius: 4px; overflow-x: auto; }
code { font-family: "JetBrains Mono", Menlo, Consolas, monospace; font-size: 13px; }
.message-stats { display: flex; gap: 12px; font-size: 12px; color: var(--muted); margin-top: 8px; }
.success { color: #9ece6a; }
.error { color: #f7768e; }
.footer { margin-top: 32px; font-size: 12px; color: var(--muted); text-align: center; }
@media (max-width: 600px) { .container { padding: 16px; } }
</style>
`
