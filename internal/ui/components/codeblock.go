// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-enry/go-enry/v2"

	"github.com/PointerLife/openbook/internal/ui/styles"
)

// =============================================================================
// CODE BLOCK RENDERER
// =============================================================================

// CodeBlock is one fenced code part ready to render.
type CodeBlock struct {
	Language string
	Code     string
	Width    int
}

// Render highlights the code and clips every line to Width. The result
// always has exactly one line per source line plus a header line.
func (c CodeBlock) Render(theme *styles.Theme) string {
	lang := DetectLanguage(c.Language, c.Code)

	header := lang
	if header == "" {
		header = "text"
	}

	width := c.Width
	if width < 8 {
		width = 8
	}

	body := highlightCode(c.Code, lang, theme)
	clip := lipgloss.NewStyle().MaxWidth(width)

	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines)+1)
	out = append(out, theme.CodeHeader.Render(clip.Render(header)))
	for _, line := range lines {
		out = append(out, clip.Render(line))
	}
	return strings.Join(out, "\n")
}

// DetectLanguage resolves a fence info string to a linguist language
// name, falling back to content classification when the fence is empty
// or unknown.
func DetectLanguage(fence, code string) string {
	if fence != "" {
		if lang, ok := enry.GetLanguageByAlias(fence); ok {
			return lang
		}
	}
	if strings.TrimSpace(code) == "" {
		return ""
	}
	return enry.GetLanguage("", []byte(code))
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

func highlightCode(code, language string, theme *styles.Theme) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get(theme.ChromaStyle())
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get(theme.ChromaFormatter())
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	// Formatters may add a trailing newline; line count must match the source.
	out := strings.TrimSuffix(buf.String(), "\n")
	if strings.Count(out, "\n") != strings.Count(code, "\n") {
		return code
	}
	return out
}
