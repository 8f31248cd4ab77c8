// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server is the optional loopback debug server started alongside
// the chat UI when metrics are enabled.
//
// # Endpoints
//
//   - GET /metrics: Prometheus exposition
//   - GET /healthz: liveness plus Ollama reachability
//   - GET /debug/queue: persistence queue counters and pending keys
//   - GET /debug/session: activity tracker status
//
// # Usage
//
//	srv := server.New("127.0.0.1:9477",
//	    server.WithQueue(queue),
//	    server.WithSession(tracker),
//	    server.WithHealthChecker(client),
//	)
//	go srv.ListenAndServe(ctx)
package server
