// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the backends the persistence queue writes to and
// the conversation codec stored in them.
//
// # Backends
//
//   - FileBackend: one JSON file per key, written atomically with fsync
//   - SQLiteBackend: a single key/value table (modernc.org/sqlite, WAL)
//   - MemoryBackend: in-process map, for ephemeral sessions and tests
//
// All three satisfy Store and return ErrNotFound for unknown keys.
//
// # Usage
//
//	store, err := storage.Open(storage.Options{Kind: "file", Dir: dir})
//	data, err := storage.EncodeConversation(conv)
//	err = store.Write(ctx, storage.ConversationKey(conv.ID), data)
//
//	metas, err := storage.ListConversations(ctx, store)
package storage
