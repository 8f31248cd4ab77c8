// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// TruncateRunes shortens s to at most maxRunes runes, ending in "..." when
// something was cut.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateWidth shortens s to fit maxWidth terminal cells. Wide runes are
// never split.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// StringWidth returns the number of terminal cells s occupies.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// PadRight pads s with spaces to width cells.
func PadRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// Wrap hard-wraps s to width cells, keeping existing line breaks. Words
// longer than a line are split.
func Wrap(s string, width int) []string {
	if width <= 0 {
		return strings.Split(s, "\n")
	}

	var out []string
	for _, para := range strings.Split(s, "\n") {
		start := len(out)
		var line strings.Builder
		lineW := 0
		flush := func() {
			out = append(out, line.String())
			line.Reset()
			lineW = 0
		}
		for _, word := range strings.Fields(para) {
			w := runewidth.StringWidth(word)
			if lineW > 0 && lineW+1+w > width {
				flush()
			}
			for w > width {
				head := runewidth.Truncate(word, width, "")
				if head == "" {
					// a single rune wider than the line
					head = string([]rune(word)[:1])
				}
				if lineW > 0 {
					flush()
				}
				out = append(out, head)
				word = word[len(head):]
				w = runewidth.StringWidth(word)
			}
			if w == 0 {
				continue
			}
			if lineW > 0 {
				line.WriteByte(' ')
				lineW++
			}
			line.WriteString(word)
			lineW += w
		}
		if lineW > 0 {
			flush()
		}
		if len(out) == start {
			out = append(out, "")
		}
	}
	return out
}
