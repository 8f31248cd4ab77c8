// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(ClientConfig{})
	assert.Equal(t, "http://127.0.0.1:11434", c.config.BaseURL)
	assert.Equal(t, 30*time.Second, c.config.Timeout)
	assert.Equal(t, DefaultConfig().DefaultModel, c.Model())
}

func TestClient_CheckRunning(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Ollama is running")
	})
	require.NoError(t, c.CheckRunning(context.Background()))
}

func TestClient_CheckRunningUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(ClientConfig{BaseURL: url, Timeout: time.Second})
	err := c.CheckRunning(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotRunning(err))
}

func TestClient_ListModels(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ListModelsResponse{Models: []ModelInfo{
			{Name: "qwen2.5-coder:7b", Size: 4_700_000_000},
		}})
	})

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "qwen2.5-coder:7b", models[0].Name)
	assert.Equal(t, "4.4 GB", models[0].FormatSize())
}

func TestClient_CheckModel(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ListModelsResponse{Models: []ModelInfo{
			{Name: "llama3:latest", Size: 4_700_000_000},
			{Name: "phi3:mini", Size: 2_300_000_000},
		}})
	})
	ctx := context.Background()

	require.NoError(t, c.CheckModel(ctx, "llama3"))
	require.NoError(t, c.CheckModel(ctx, "llama3:latest"))
	require.NoError(t, c.CheckModel(ctx, "phi3:mini"))

	err := c.CheckModel(ctx, "mistral")
	require.Error(t, err)
	assert.True(t, IsModelNotFound(err))
	assert.Contains(t, err.Error(), "llama3:latest (4.4 GB)")
	assert.Contains(t, err.Error(), "phi3:mini (2.1 GB)")
}

func TestClient_CheckModelNoneInstalled(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[]}`)
	})

	err := c.CheckModel(context.Background(), "mistral")
	assert.True(t, IsModelNotFound(err))
	assert.Contains(t, err.Error(), "ollama pull mistral")
}

func TestClient_ChatStream(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "test-model", req.Model)

		fmt.Fprintln(w, `{"model":"test-model","message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `not json`)
		fmt.Fprintln(w, `{"model":"test-model","message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"model":"test-model","message":{"role":"assistant","content":""},"done":true,"eval_count":10,"eval_duration":2000000000}`)
	})

	var got []StreamChunk
	err := c.ChatStream(context.Background(), "test-model", []Message{NewUserMessage("hi")}, func(chunk StreamChunk) {
		got = append(got, chunk)
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Hel", got[0].Content)
	assert.Equal(t, "lo", got[1].Content)
	assert.True(t, got[2].Done)
	assert.Equal(t, 10, got[2].CompletionTokens)
	assert.InDelta(t, 5.0, got[2].TokensPerSecond(), 0.001)
}

func TestClient_ChatStreamModelNotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model 'x' not found"}`)
	})

	err := c.ChatStream(context.Background(), "x", nil, nil)
	assert.True(t, IsModelNotFound(err))
}

func TestClient_ChatStreamAPIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"out of memory"}`)
	})

	err := c.ChatStream(context.Background(), "", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestClient_ChatStreamChan(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"a"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":"b"},"done":true}`)
	})

	var sb strings.Builder
	for chunk := range c.ChatStreamChan(context.Background(), "", nil) {
		require.NoError(t, chunk.Error)
		sb.WriteString(chunk.Content)
	}
	assert.Equal(t, "ab", sb.String())
}

func TestClient_ChatStreamChanDeliversError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	var last StreamChunk
	for chunk := range c.ChatStreamChan(context.Background(), "", nil) {
		last = chunk
	}
	assert.True(t, last.Done)
	assert.True(t, IsModelNotFound(last.Error))
}

func TestStreamReader_InlineError(t *testing.T) {
	r := NewStreamReader(strings.NewReader(`{"message":{"content":"x"}}` + "\n" + `{"error":"boom"}` + "\n"))

	var n int
	err := r.Process(context.Background(), func(StreamChunk) { n++ })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 2, n)
	assert.Equal(t, "x", r.Content())
	assert.Equal(t, 1, r.TokenCount())
}

func TestStreamReader_EOFWithoutDone(t *testing.T) {
	r := NewStreamReader(strings.NewReader(`{"model":"m","message":{"content":"partial"}}`))

	require.NoError(t, r.Process(context.Background(), nil))
	assert.Equal(t, "partial", r.Content())
	assert.Equal(t, "m", r.Model())
}

func TestStreamReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewStreamReader(strings.NewReader(`{"message":{"content":"x"}}` + "\n"))
	assert.ErrorIs(t, r.Process(ctx, nil), context.Canceled)
}
