// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"
)

// StreamCallback receives every decoded chunk, including the final one.
type StreamCallback func(chunk StreamChunk)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader decodes an NDJSON /api/chat response body.
type StreamReader struct {
	reader     *bufio.Reader
	content    strings.Builder
	model      string
	tokenCount int
}

// NewStreamReader wraps r.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReaderSize(r, 16*1024)}
}

// Process reads until the final chunk, EOF, or ctx is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if chunk == nil {
			continue
		}
		if callback != nil {
			callback(*chunk)
		}
		if chunk.Error != nil {
			return chunk.Error
		}
		if chunk.Done {
			return nil
		}
	}
}

// Next returns the next chunk. A nil chunk with a nil error means the line
// was blank or malformed and was skipped.
func (s *StreamReader) Next() (*StreamChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if len(line) == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}

	var resp chatLine
	if jerr := json.Unmarshal(line, &resp); jerr != nil {
		return nil, nil
	}
	if resp.Model != "" {
		s.model = resp.Model
	}

	chunk := &StreamChunk{
		Content:    resp.Message.Content,
		Done:       resp.Done,
		DoneReason: resp.DoneReason,
		Model:      s.model,
	}
	if resp.Error != "" {
		chunk.Error = &ClientError{Type: ErrTypeInvalidResponse, Message: resp.Error}
	}
	if chunk.Content != "" {
		s.content.WriteString(chunk.Content)
		s.tokenCount++
	}
	if resp.Done {
		chunk.TotalDuration = time.Duration(resp.TotalDuration)
		chunk.LoadDuration = time.Duration(resp.LoadDuration)
		chunk.PromptEvalDuration = time.Duration(resp.PromptEvalDuration)
		chunk.EvalDuration = time.Duration(resp.EvalDuration)
		chunk.PromptTokens = resp.PromptEvalCount
		chunk.CompletionTokens = resp.EvalCount
	}
	return chunk, nil
}

// Content returns everything received so far.
func (s *StreamReader) Content() string {
	return s.content.String()
}

// TokenCount returns the number of non-empty chunks received.
func (s *StreamReader) TokenCount() int {
	return s.tokenCount
}

// Model returns the model name reported by the stream.
func (s *StreamReader) Model() string {
	return s.model
}
