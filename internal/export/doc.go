// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders saved conversations for reading outside openbook.
//
// # Supported Formats
//
//   - markdown: YAML frontmatter, one section per message
//   - html: standalone page, markdown rendered and sanitized
//   - json: the stored form, readable by storage.DecodeStored
//
// # Usage
//
//	exp, err := export.New(export.FormatHTML, export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	err = export.ToFile(conv, exp, "chat.html")
package export
