// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// PartKind is the closed set of content kinds a message is made of.
type PartKind int

const (
	PartText PartKind = iota
	PartCode
	PartImage
	PartToolResult
)

// Part is one typed piece of message content.
type Part struct {
	Kind PartKind
	Text string
	// Language of a code part, from the fence info string.
	Language string
	// Source of an image part.
	Source string
}

// Size returns the character length of the part, counted on the NFC
// form so combining sequences count once.
func (p Part) Size() int {
	if p.Kind == PartImage {
		return 0
	}
	if norm.NFC.IsNormalString(p.Text) {
		return utf8.RuneCountInString(p.Text)
	}
	return utf8.RuneCountInString(norm.NFC.String(p.Text))
}

var imagePattern = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)[^)]*\)`)

// ParseParts splits markdown content into text, fenced code and image
// parts. An unterminated fence (content still streaming) yields a code
// part with what has arrived so far.
func ParseParts(content string) []Part {
	if content == "" {
		return nil
	}

	var parts []Part
	var buf strings.Builder
	inCode := false
	lang := ""

	flushText := func() {
		parts = append(parts, splitImages(buf.String())...)
		buf.Reset()
	}

	for _, line := range strings.SplitAfter(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inCode {
				flushText()
				inCode = true
				lang = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
				continue
			}
			parts = append(parts, Part{
				Kind:     PartCode,
				Text:     strings.TrimSuffix(buf.String(), "\n"),
				Language: lang,
			})
			buf.Reset()
			inCode = false
			lang = ""
			continue
		}
		buf.WriteString(line)
	}

	if inCode {
		parts = append(parts, Part{
			Kind:     PartCode,
			Text:     strings.TrimSuffix(buf.String(), "\n"),
			Language: lang,
		})
	} else {
		flushText()
	}
	return parts
}

func splitImages(text string) []Part {
	var parts []Part
	addText := func(s string) {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, Part{Kind: PartText, Text: s})
		}
	}

	last := 0
	for _, m := range imagePattern.FindAllStringSubmatchIndex(text, -1) {
		addText(text[last:m[0]])
		parts = append(parts, Part{Kind: PartImage, Source: text[m[2]:m[3]]})
		last = m[1]
	}
	addText(text[last:])
	return parts
}
