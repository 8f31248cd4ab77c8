// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the openbook command tree.
//
// Running openbook with no command opens the chat view. The other commands
// work on saved conversations and the config file without starting it.
//
// # Commands
//
//   - chat: full-screen chat view (default)
//   - journal: line-mode chat with input history
//   - list, search, show, export, delete: saved conversations
//   - config: show, get, set, validate, keys, path
//   - version
//
// # Output
//
// list, search, show, config and version accept --json and print a
// JSONResponse envelope. Errors are printed once by Execute and mapped to an
// exit code by GetExitCode.
//
// # Session Wiring
//
// chat and journal share one runtime: a log file, the configured store, an
// activity tracker and the autosave queue that writes through it when the
// user goes idle. Closing the runtime flushes every pending write.
package cli
