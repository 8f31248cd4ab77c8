// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/persist"
	"github.com/PointerLife/openbook/internal/storage"
)

// Autosaver is the commit hook between the live conversation and the
// persistence queue.
type Autosaver struct {
	queue  *persist.Queue
	logger *slog.Logger
}

// NewAutosaver wraps q. A nil logger discards.
func NewAutosaver(q *persist.Queue, logger *slog.Logger) *Autosaver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Autosaver{queue: q, logger: logger}
}

// Commit snapshots conv and hands it to the queue. It must be called on the
// goroutine that mutates conv; it never blocks on disk.
func (a *Autosaver) Commit(conv *model.Conversation) error {
	data, err := storage.EncodeConversation(conv)
	if err != nil {
		return err
	}
	a.queue.Enqueue(storage.ConversationKey(conv.ID), data)
	return nil
}

// Load returns the newest saved state of the conversation, including a
// commit that has not reached the backend yet.
func (a *Autosaver) Load(ctx context.Context, id string) (*model.Conversation, error) {
	data, err := a.queue.Read(ctx, storage.ConversationKey(id))
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return storage.DecodeConversation(data)
}

// Flush writes one conversation now, bypassing the debounce.
func (a *Autosaver) Flush(id string) error {
	return a.queue.FlushNow(storage.ConversationKey(id))
}

// Pending lists conversations with unsaved commits.
func (a *Autosaver) Pending() []string {
	keys := a.queue.Pending()
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := strings.CutPrefix(k, storage.ConversationPrefix); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Close flushes everything and stops accepting commits.
func (a *Autosaver) Close() error {
	if err := a.queue.Close(); err != nil {
		a.logger.Warn("autosave flush on close failed", "error", err)
		return err
	}
	return nil
}
