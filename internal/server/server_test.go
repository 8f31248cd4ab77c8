// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PointerLife/openbook/internal/persist"
	"github.com/PointerLife/openbook/internal/session"
	"github.com/PointerLife/openbook/internal/telemetry"
)

type stubHealth struct{ err error }

func (s stubHealth) CheckRunning(context.Context) error { return s.err }

type stubQueue struct {
	stats   persist.Stats
	pending []string
}

func (s stubQueue) Stats() persist.Stats { return s.stats }
func (s stubQueue) Pending() []string    { return s.pending }

type stubSession struct{ status session.Status }

func (s stubSession) Status() session.Status { return s.status }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_HealthWithoutChecker(t *testing.T) {
	rec := get(t, New("").Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "not_configured", body.OllamaStatus)
}

func TestServer_HealthDegraded(t *testing.T) {
	h := New("", WithHealthChecker(stubHealth{err: errors.New("down")})).Handler()

	var body HealthResponse
	require.NoError(t, json.NewDecoder(get(t, h, "/healthz").Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unavailable", body.OllamaStatus)
}

func TestServer_HealthOK(t *testing.T) {
	h := New("", WithHealthChecker(stubHealth{})).Handler()

	var body HealthResponse
	require.NoError(t, json.NewDecoder(get(t, h, "/healthz").Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.OllamaStatus)
}

func TestServer_Queue(t *testing.T) {
	q := stubQueue{
		stats:   persist.Stats{Pending: 2, Enqueued: 5, Coalesced: 3, Written: 1},
		pending: []string{"conversations/b", "conversations/a"},
	}
	rec := get(t, New("", WithQueue(q)).Handler(), "/debug/queue")
	require.Equal(t, http.StatusOK, rec.Code)

	var body QueueResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, q.stats, body.Stats)
	assert.Equal(t, []string{"conversations/a", "conversations/b"}, body.Pending)
}

func TestServer_QueueEmptyPendingIsArray(t *testing.T) {
	rec := get(t, New("", WithQueue(stubQueue{})).Handler(), "/debug/queue")
	assert.Contains(t, rec.Body.String(), `"pending":[]`)
}

func TestServer_QueueNotAttached(t *testing.T) {
	rec := get(t, New("").Handler(), "/debug/queue")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not attached")
}

func TestServer_Session(t *testing.T) {
	st := session.Status{SessionID: "sess_1", IdleTime: time.Second, Idle: true}
	rec := get(t, New("", WithSession(stubSession{status: st})).Handler(), "/debug/session")
	require.Equal(t, http.StatusOK, rec.Code)

	var body session.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "sess_1", body.SessionID)
	assert.True(t, body.Idle)
	assert.Equal(t, time.Second, body.IdleTime)
}

func TestServer_Metrics(t *testing.T) {
	telemetry.QueueEnqueued.Inc()

	rec := get(t, New("").Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openbook_persist_enqueued_total")
}

func TestServer_NotFound(t *testing.T) {
	rec := get(t, New("").Handler(), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":404`)
}

func TestServer_SecurityHeaders(t *testing.T) {
	rec := get(t, New("").Handler(), "/healthz")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := get(t, h, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := New("")
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
