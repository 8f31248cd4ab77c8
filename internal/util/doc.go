// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across the application: crash-safe
// file writes for the persistence backends and terminal-width aware string
// functions for the renderer.
package util
