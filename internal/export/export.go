// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/storage"
	"github.com/PointerLife/openbook/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a conversation to the target format and returns the content.
	Export(conv *storage.StoredConversation) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".md", ".html").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// Supported formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
)

// Formats lists the names accepted by New.
func Formats() []string {
	return []string{FormatMarkdown, FormatHTML, FormatJSON}
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata includes metadata header (timestamp, model, stats).
	IncludeMetadata bool

	// IncludeTimestamps includes per-message timestamps.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme string

	// now is the export time written to headers and footers.
	now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "dark",
	}
}

func (o *Options) exportedAt() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// New returns the exporter for format. "md" is accepted for markdown.
func New(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case FormatMarkdown, "md", "":
		return NewMarkdownExporter(opts), nil
	case FormatHTML, "htm":
		return NewHTMLExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want one of %s)", format, strings.Join(Formats(), ", "))
	}
}

// FormatForPath picks a format from a file extension, falling back to
// markdown.
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return FormatHTML
	case ".json":
		return FormatJSON
	default:
		return FormatMarkdown
	}
}

// DefaultFilename names an export after the conversation summary.
func DefaultFilename(conv *storage.StoredConversation, exporter Exporter) string {
	return fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(conv.Summary),
		conv.UpdatedAt.Format("20060102_150405"),
		exporter.FileExtension(),
	)
}

// ToFile exports conv and replaces path atomically.
//
// NOTE: The whole export is built in memory before it is written.
func ToFile(conv *storage.StoredConversation, exporter Exporter, path string) error {
	content, err := exporter.Export(conv)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := util.AtomicWriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// validate rejects conversations that cannot be exported.
func validate(conv *storage.StoredConversation) error {
	if conv == nil {
		return fmt.Errorf("conversation is nil")
	}
	if len(conv.Messages) == 0 {
		return fmt.Errorf("conversation has no messages")
	}
	if conv.CreatedAt.IsZero() {
		return fmt.Errorf("conversation has invalid creation timestamp")
	}
	return nil
}

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(s, 50)

	result := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "conversation"
	}
	return string(result)
}

// formatDuration formats a duration in milliseconds to a human-readable string.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := float64(ms) / 1000.0
	if seconds < 60 {
		return fmt.Sprintf("%.2fs", seconds)
	}
	minutes := int(seconds / 60)
	remainingSeconds := int(seconds) % 60
	return fmt.Sprintf("%dm %ds", minutes, remainingSeconds)
}

func formatTokensPerSec(tps float64) string {
	if tps == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f tok/s", tps)
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// roleLabel returns the bracketed label for a message role.
func roleLabel(role string) string {
	if role == "" {
		return "[Unknown]"
	}
	return "[" + model.Role(role).DisplayName() + "]"
}

// statParts lists the statistics recorded on an assistant message.
func statParts(msg *storage.StoredMessage) []string {
	var parts []string
	if msg.TokenCount > 0 {
		parts = append(parts, fmt.Sprintf("Tokens: %d", msg.TokenCount))
	}
	if msg.DurationMs > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", formatDuration(msg.DurationMs)))
	}
	if msg.TTFTMs > 0 {
		parts = append(parts, fmt.Sprintf("TTFT: %s", formatDuration(msg.TTFTMs)))
	}
	if msg.TokensPerSec > 0 {
		parts = append(parts, fmt.Sprintf("Speed: %s", formatTokensPerSec(msg.TokensPerSec)))
	}
	return parts
}
