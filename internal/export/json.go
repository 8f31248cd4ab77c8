// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"

	"github.com/PointerLife/openbook/internal/storage"
)

// JSONExporter writes the stored form of a conversation. Options are
// ignored so the output can be decoded with storage.DecodeStored.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(*Options) *JSONExporter {
	return &JSONExporter{}
}

// Export converts a conversation to JSON format.
func (e *JSONExporter) Export(conv *storage.StoredConversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (e *JSONExporter) FileExtension() string { return ".json" }

func (e *JSONExporter) MimeType() string { return "application/json" }
