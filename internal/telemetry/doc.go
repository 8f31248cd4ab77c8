// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry holds the prometheus metrics for openbook.
//
// The transcript driver reports frame recomputes and discarded
// measurements, and the persistence queue reports enqueues, coalesced
// writes, retries and failures. All metrics live in the default registry
// and are served by internal/server on /metrics.
//
// # Privacy
//
// Metrics are local-only. Nothing is transmitted unless the debug server
// is explicitly enabled, and message content is never recorded.
package telemetry
