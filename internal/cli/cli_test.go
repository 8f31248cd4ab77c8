// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PointerLife/openbook/internal/config"
	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/ollama"
	"github.com/PointerLife/openbook/internal/storage"
)

// =============================================================================
// TEST ENVIRONMENT
// =============================================================================

// testEnv points OPENBOOK_HOME at a temp dir with a file-backed store.
func testEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("OPENBOOK_HOME", home)
	for _, k := range []string{
		"OPENBOOK_MODEL", "OPENBOOK_OLLAMA_URL", "OPENBOOK_STORE", "OPENBOOK_STORE_DIR",
		"OPENBOOK_DB", "OPENBOOK_LOG", "OPENBOOK_LOG_LEVEL", "OPENBOOK_METRICS_ADDR",
	} {
		t.Setenv(k, "")
	}
	ForceColorsEnabled(false)
	return home
}

// seedConversation writes a finished conversation to the store under home.
func seedConversation(t *testing.T, home, title string, turns ...string) *model.Conversation {
	t.Helper()
	conv := model.NewConversationWithModel("test-model")
	conv.SetTitle(title)
	for i, text := range turns {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		conv.AddMessage(model.NewMessage(role, text))
	}

	data, err := storage.EncodeConversation(conv)
	require.NoError(t, err)

	s, err := storage.Open(storage.Options{Kind: storage.KindFile, Dir: filepath.Join(home, "conversations")})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Write(context.Background(), storage.ConversationKey(conv.ID), data))
	return conv
}

// run executes the command tree with args and returns everything it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func decodeResponse(t *testing.T, out string) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

// =============================================================================
// CONVERSATION COMMANDS
// =============================================================================

func TestList(t *testing.T) {
	home := testEnv(t)
	a := seedConversation(t, home, "Go generics", "how do constraints work?", "they restrict type sets")
	b := seedConversation(t, home, "Sourdough", "how long to proof?", "overnight in the fridge")

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "SUMMARY")
	assert.Contains(t, out, a.ID)
	assert.Contains(t, out, b.ID)
	assert.Contains(t, out, "Sourdough")
}

func TestListEmpty(t *testing.T) {
	testEnv(t)

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no conversations")
}

func TestListJSON(t *testing.T) {
	home := testEnv(t)
	seedConversation(t, home, "one", "a", "b")
	seedConversation(t, home, "two", "c", "d")
	seedConversation(t, home, "three", "e", "f")

	out, err := run(t, "list", "--json")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	assert.True(t, resp.Success)
	assert.Equal(t, "list", resp.Command)
	assert.Nil(t, resp.Error)
	assert.Len(t, resp.Data, 3)

	out, err = run(t, "list", "--json", "--limit", "2")
	require.NoError(t, err)
	assert.Len(t, decodeResponse(t, out).Data, 2)
}

func TestListNegativeLimit(t *testing.T) {
	testEnv(t)

	_, err := run(t, "list", "--limit=-1")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestSearch(t *testing.T) {
	home := testEnv(t)
	a := seedConversation(t, home, "Go generics", "how do constraints work?", "they restrict type sets")
	b := seedConversation(t, home, "Sourdough", "how long to proof?", "overnight in the fridge")

	out, err := run(t, "search", "fridge")
	require.NoError(t, err)
	assert.Contains(t, out, b.ID)
	assert.NotContains(t, out, a.ID)

	out, err = run(t, "search", "--json", "type", "sets")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, a.ID, resp.Data.([]any)[0].(map[string]any)["id"])
}

func TestShow(t *testing.T) {
	home := testEnv(t)
	conv := seedConversation(t, home, "Go generics", "how do constraints work?", "they restrict type sets")

	out, err := run(t, "show", conv.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "# Go generics")
	assert.Contains(t, out, "how do constraints work?")
	assert.Contains(t, out, "they restrict type sets")

	out, err = run(t, "show", conv.ID, "--json")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, conv.ID, data["id"])
	assert.Len(t, data["messages"], 2)
}

func TestShowNotFound(t *testing.T) {
	testEnv(t)

	_, err := run(t, "show", "conv_missing")
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "conv_missing", nf.ID)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestShowRequiresID(t *testing.T) {
	testEnv(t)

	_, err := run(t, "show")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	home := testEnv(t)
	conv := seedConversation(t, home, "Sourdough", "how long to proof?", "overnight in the fridge")
	dir := t.TempDir()

	dest := filepath.Join(dir, "out", "sourdough.md")
	out, err := run(t, "export", conv.ID, dest)
	require.NoError(t, err)
	assert.Contains(t, out, "exported")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "generator: openbook")
	assert.Contains(t, string(data), "overnight in the fridge")

	page := filepath.Join(dir, "sourdough.html")
	_, err = run(t, "export", conv.ID, page)
	require.NoError(t, err)
	data, err = os.ReadFile(page)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))

	out, err = run(t, "export", conv.ID, "--format", "json")
	require.NoError(t, err)
	back, err := storage.DecodeStored([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, conv.ID, back.ID)

	out, err = run(t, "export", conv.ID, "--no-metadata")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Sourdough"))

	_, err = run(t, "export", conv.ID, "--format", "pdf")
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestDelete(t *testing.T) {
	home := testEnv(t)
	keep := seedConversation(t, home, "keep", "a", "b")
	drop := seedConversation(t, home, "drop", "c", "d")

	out, err := run(t, "delete", drop.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = run(t, "show", drop.ID)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
	_, err = run(t, "show", keep.ID)
	assert.NoError(t, err)

	_, err = run(t, "delete", drop.ID)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

// =============================================================================
// CONFIG COMMANDS
// =============================================================================

func TestConfigGet(t *testing.T) {
	testEnv(t)

	out, err := run(t, "config", "get", "ui.theme")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", out)

	_, err = run(t, "config", "get", "ui.nope")
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestConfigSetWritesFile(t *testing.T) {
	home := testEnv(t)

	out, err := run(t, "config", "set", "ui.theme", "light")
	require.NoError(t, err)
	assert.Contains(t, out, "ui.theme = light")

	cfg, err := config.LoadFromPath(filepath.Join(home, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "light", cfg.UI.Theme)

	out, err = run(t, "config", "get", "ui.theme")
	require.NoError(t, err)
	assert.Equal(t, "light\n", out)

	_, err = run(t, "config", "set", "transcript.overscan", "7")
	require.NoError(t, err)
	out, err = run(t, "config", "get", "transcript.overscan")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestConfigSetErrors(t *testing.T) {
	testEnv(t)

	_, err := run(t, "config", "set", "ui.nope", "x")
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))

	_, err = run(t, "config", "set", "local.timeout_secs", "soon")
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestConfigValidate(t *testing.T) {
	testEnv(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(good, []byte("[ui]\ntheme = \"light\"\n"), 0o600))
	out, err := run(t, "config", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[ui\ntheme = "), 0o600))
	_, err = run(t, "config", "validate", bad)
	assert.Error(t, err)

	_, err = run(t, "config", "validate", filepath.Join(dir, "missing.toml"))
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestConfigPathAndKeys(t *testing.T) {
	home := testEnv(t)

	out, err := run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.toml")+"\n", out)

	custom := filepath.Join(t.TempDir(), "custom.toml")
	out, err = run(t, "--config", custom, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, custom+"\n", out)

	out, err = run(t, "config", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "transcript.overscan\n")
	assert.Contains(t, out, "persistence.backend\n")
}

func TestModelFlagOverridesConfig(t *testing.T) {
	testEnv(t)

	out, err := run(t, "--model", "llama3.2:3b", "config", "get", "local.ollama_model")
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:3b\n", out)
}

func TestNoColorFlag(t *testing.T) {
	home := testEnv(t)
	seedConversation(t, home, "Sourdough", "how long to proof?", "overnight")
	ForceColorsEnabled(true)
	t.Cleanup(func() { ForceColorsEnabled(false) })

	out, err := run(t, "--no-color", "list")
	require.NoError(t, err)
	assert.False(t, ColorsEnabled())
	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "Sourdough")
}

func TestVersionJSON(t *testing.T) {
	testEnv(t)

	out, err := run(t, "version", "--json")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	assert.Equal(t, Version, resp.Data.(map[string]any)["version"])
}

func TestChatRequiresTerminal(t *testing.T) {
	if IsTTY() {
		t.Skip("stdin is a terminal")
	}
	testEnv(t)

	_, err := run(t)
	var ttyErr *TTYRequiredError
	require.ErrorAs(t, err, &ttyErr)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneralError},
		{"validation", NewValidationError("limit", "-1", "negative"), ExitUsageError},
		{"tty", &TTYRequiredError{}, ExitUsageError},
		{"config", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "ui.theme", Message: "bad"}}), ExitConfigError},
		{"not found", NewNotFoundError("conversation", "x"), ExitNotFoundError},
		{"store miss", fmt.Errorf("load: %w", storage.ErrNotFound), ExitNotFoundError},
		{"ollama down", ollama.ErrNotRunning, ExitNetworkError},
		{"timeout", ollama.ErrTimeout, ExitTimeoutError},
		{"model missing", fmt.Errorf("journal: %w", ollama.ErrModelNotFound), ExitNotFoundError},
		{"deadline", context.DeadlineExceeded, ExitTimeoutError},
		{"wrapped command", NewCommandError("show", "load", "x", storage.ErrNotFound), ExitNotFoundError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestDisplayError(t *testing.T) {
	ForceColorsEnabled(false)
	var buf bytes.Buffer
	DisplayError(&buf, NewNotFoundError("conversation", "c1"), false)
	assert.Contains(t, buf.String(), "[ERROR] conversation not found: c1")

	buf.Reset()
	DisplayError(&buf, NewNotFoundError("conversation", "c1"), true)
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "not_found_error", out["error_type"])
	assert.Equal(t, "c1", out["id"])
	assert.Equal(t, false, out["success"])

	buf.Reset()
	DisplayError(&buf, nil, false)
	assert.Empty(t, buf.String())
}

func TestOutputJSONError(t *testing.T) {
	var buf bytes.Buffer
	err := OutputJSON(&buf, true, "show", func() (any, error) {
		return nil, errors.New("broken")
	})
	require.Error(t, err)
	resp := decodeResponse(t, buf.String())
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "broken", *resp.Error)
}

// =============================================================================
// JOURNAL
// =============================================================================

type fakeStreamer struct {
	chunks  []ollama.StreamChunk
	err     error
	started chan struct{}
	block   bool
	got     []ollama.Message
}

func (f *fakeStreamer) ChatStream(ctx context.Context, _ string, msgs []ollama.Message, cb ollama.StreamCallback) error {
	f.got = msgs
	for _, c := range f.chunks {
		cb(c)
	}
	if f.started != nil {
		close(f.started)
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

type fakeSaver struct {
	mu      sync.Mutex
	commits int
	last    string
	flushed []string
}

func (f *fakeSaver) Commit(conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	f.last = ""
	if last := conv.GetLastMessage(); last != nil {
		f.last = last.GetDisplayContent()
	}
	return nil
}

func (f *fakeSaver) Flush(id string) error {
	f.flushed = append(f.flushed, id)
	return nil
}

type countingActivity struct{ n int }

func (c *countingActivity) RecordActivity() { c.n++ }

func newTestJournal(client chatStreamer) (*journal, *fakeSaver, *bytes.Buffer) {
	var out bytes.Buffer
	saver := &fakeSaver{}
	return &journal{
		out:      &out,
		client:   client,
		saver:    saver,
		activity: &countingActivity{},
		conv:     model.NewConversationWithModel("test-model"),
		model:    "test-model",
	}, saver, &out
}

func TestJournalStreamsReply(t *testing.T) {
	client := &fakeStreamer{chunks: []ollama.StreamChunk{
		{Content: "Hello"},
		{Content: ", world"},
		{Done: true, PromptTokens: 4, CompletionTokens: 2},
	}}
	j, saver, out := newTestJournal(client)

	quit, err := j.handleLine(context.Background(), "  hi there ")
	require.NoError(t, err)
	assert.False(t, quit)

	assert.Contains(t, out.String(), "Hello, world")
	require.Len(t, j.conv.Messages, 2)
	assert.Equal(t, "hi there", j.conv.Messages[0].Content)
	reply := j.conv.Messages[1]
	assert.False(t, reply.IsStreaming)
	assert.Equal(t, "Hello, world", reply.Content)
	assert.Equal(t, 2, reply.TokenCount)

	// one commit for the pair, one per token batch, one when final
	assert.Equal(t, 4, saver.commits)
	assert.Equal(t, "Hello, world", saver.last)

	require.Len(t, client.got, 1)
	assert.Equal(t, "user", client.got[0].Role)
	assert.Equal(t, 1, j.activity.(*countingActivity).n)
}

func TestJournalStreamError(t *testing.T) {
	client := &fakeStreamer{err: ollama.ErrModelNotFound}
	j, _, _ := newTestJournal(client)

	_, err := j.handleLine(context.Background(), "hi")
	require.ErrorIs(t, err, ollama.ErrModelNotFound)

	reply := j.conv.GetLastMessage()
	assert.False(t, reply.IsStreaming)
	assert.Contains(t, reply.Content, "_(error:")
}

func TestJournalStop(t *testing.T) {
	client := &fakeStreamer{
		chunks:  []ollama.StreamChunk{{Content: "partial"}},
		started: make(chan struct{}),
		block:   true,
	}
	j, _, _ := newTestJournal(client)

	go func() {
		<-client.started
		assert.True(t, j.stop())
	}()

	_, err := j.handleLine(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "partial", j.conv.GetLastMessage().Content)
	assert.False(t, j.stop())
}

func TestJournalStopBeforeFirstToken(t *testing.T) {
	client := &fakeStreamer{started: make(chan struct{}), block: true}
	j, _, _ := newTestJournal(client)

	go func() {
		<-client.started
		j.stop()
	}()

	_, err := j.handleLine(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "_(stopped)_", j.conv.GetLastMessage().Content)
}

func TestJournalCommands(t *testing.T) {
	j, saver, out := newTestJournal(&fakeStreamer{})

	quit, err := j.handleLine(context.Background(), "/help")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "/history [n]")

	out.Reset()
	_, err = j.handleLine(context.Background(), "/id")
	require.NoError(t, err)
	assert.Equal(t, j.conv.ID+"\n", out.String())

	_, err = j.handleLine(context.Background(), "/save")
	require.NoError(t, err)
	assert.Equal(t, []string{j.conv.ID}, saver.flushed)

	out.Reset()
	_, err = j.handleLine(context.Background(), "/title  Weekend  bread plan ")
	require.NoError(t, err)
	assert.Equal(t, "Weekend  bread plan", j.conv.Title)
	assert.Equal(t, 1, saver.commits)

	out.Reset()
	_, err = j.handleLine(context.Background(), "/title")
	require.NoError(t, err)
	assert.Equal(t, "Weekend  bread plan\n", out.String())

	_, err = j.handleLine(context.Background(), "/history zero")
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	_, err = j.handleLine(context.Background(), "/bogus")
	assert.Error(t, err)

	for _, line := range []string{"/quit", "/q", "exit", "QUIT"} {
		quit, err := j.handleLine(context.Background(), line)
		require.NoError(t, err)
		assert.True(t, quit, line)
	}

	quit, err = j.handleLine(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Empty(t, j.conv.Messages)
}

func TestJournalHistory(t *testing.T) {
	j, _, out := newTestJournal(&fakeStreamer{})
	for i := range 5 {
		j.conv.AddMessage(model.NewMessage(model.RoleUser, fmt.Sprintf("line %d", i)))
	}

	_, err := j.handleLine(context.Background(), "/history 2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "line 3")
	assert.Contains(t, lines[1], "line 4")
}
