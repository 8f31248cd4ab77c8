// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches on the error type so wrapped sentinels compare equal.
func (e *ClientError) Is(target error) bool {
	var t *ClientError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type && t.Type != ErrTypeUnknown
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// IsModelNotFound reports whether err is a missing-model error.
func IsModelNotFound(err error) bool { return errors.Is(err, ErrModelNotFound) }

// IsNotRunning reports whether the server could not be reached.
func IsNotRunning(err error) bool { return errors.Is(err, ErrNotRunning) }

// IsTimeout reports whether the request timed out or was cancelled.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// DefaultModel to use if none specified
	DefaultModel string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		BaseURL:      "http://127.0.0.1:11434",
		Timeout:      30 * time.Second,
		DefaultModel: "qwen2.5-coder:7b",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to a local Ollama server. Safe for concurrent use.
type Client struct {
	mu         sync.RWMutex
	config     ClientConfig
	httpClient *http.Client
	// streaming requests are bounded by their context only
	streamClient *http.Client
}

// NewClient creates a client; zero fields in cfg take their defaults.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = def.DefaultModel
	}
	return &Client{
		config:       cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}
}

// Model returns the model used when none is given.
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.DefaultModel
}

// CheckRunning pings the server root.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ClientError{Type: ErrTypeConnection, Message: "unexpected status from Ollama: " + resp.Status}
	}
	return nil
}

// ListModels returns the installed models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode models", Cause: err}
	}
	return out.Models, nil
}

// CheckModel reports ErrModelNotFound when model is not installed. The
// error lists the installed models. A name without a tag matches its
// ":latest" variant.
func (c *Client) CheckModel(ctx context.Context, model string) error {
	if model == "" {
		model = c.Model()
	}
	models, err := c.ListModels(ctx)
	if err != nil {
		return err
	}

	installed := make([]string, 0, len(models))
	for _, m := range models {
		if m.Name == model || strings.TrimSuffix(m.Name, ":latest") == model {
			return nil
		}
		installed = append(installed, m.Name+" ("+m.FormatSize()+")")
	}

	msg := "model " + model + " is not installed"
	if len(installed) > 0 {
		msg += "; installed: " + strings.Join(installed, ", ")
	} else {
		msg += "; run: ollama pull " + model
	}
	return &ClientError{Type: ErrTypeModelNotFound, Message: msg}
}

// ChatStream sends messages and calls callback for every chunk until the
// reply is complete. An empty model uses the default.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) error {
	if model == "" {
		model = c.Model()
	}

	body, err := json.Marshal(ChatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	return NewStreamReader(resp.Body).Process(ctx, callback)
}

// ChatStreamChan is ChatStream delivered over a channel. The channel is
// closed after the final chunk; a failure arrives as a chunk with Error set.
func (c *Client) ChatStreamChan(ctx context.Context, model string, messages []Message) <-chan StreamChunk {
	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)
		err := c.ChatStream(ctx, model, messages, func(chunk StreamChunk) {
			select {
			case ch <- chunk:
			case <-ctx.Done():
			}
		})
		if err != nil {
			select {
			case ch <- StreamChunk{Error: err, Done: true}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

// =============================================================================
// HELPERS
// =============================================================================

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTimeout
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running", Cause: err}
}

func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrModelNotFound
	}
	var apiErr OllamaError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: apiErr.Error}
	}
	return &ClientError{Type: ErrTypeInvalidResponse, Message: "request failed: " + resp.Status}
}

func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	_ = r.Close()
}
