// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/PointerLife/openbook/internal/persist"
)

// ErrNotFound is returned for keys that were never written.
var ErrNotFound = persist.ErrNotFound

// ErrInvalidKey is returned for keys that cannot be stored.
var ErrInvalidKey = errors.New("storage: invalid key")

// Store is a persistence backend that can also enumerate and delete keys.
type Store interface {
	persist.Backend
	Keys(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Options selects and locates a backend.
type Options struct {
	Kind string
	// Dir is the base directory for the file backend.
	Dir string
	// Path is the database file for the sqlite backend.
	Path string
}

// Open builds the backend named by opts.Kind.
func Open(opts Options) (Store, error) {
	switch opts.Kind {
	case KindFile, "":
		if opts.Dir == "" {
			return nil, fmt.Errorf("file backend: no directory configured")
		}
		b, err := NewFileBackend(opts.Dir)
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite backend: no database path configured")
		}
		b, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}

// ValidateKey rejects keys that would escape the store or collide with
// temp files: empty, absolute, dot segments, backslashes.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.HasPrefix(seg, ".") {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// =============================================================================
// CONVERSATION QUERIES
// =============================================================================

// LoadConversation reads and decodes one stored conversation.
func LoadConversation(ctx context.Context, r persist.Backend, id string) (*StoredConversation, error) {
	data, err := r.Read(ctx, ConversationKey(id))
	if err != nil {
		return nil, err
	}
	return DecodeStored(data)
}

// ListConversations returns every readable conversation, most recently
// updated first. Corrupt entries are skipped.
func ListConversations(ctx context.Context, s Store) ([]ConversationMeta, error) {
	keys, err := s.Keys(ctx, ConversationPrefix)
	if err != nil {
		return nil, err
	}

	metas := make([]ConversationMeta, 0, len(keys))
	for _, key := range keys {
		sc, err := LoadConversation(ctx, s, strings.TrimPrefix(key, ConversationPrefix))
		if err != nil {
			continue
		}
		metas = append(metas, sc.Meta())
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// SearchConversations returns conversations whose summary or any message
// contains query, case-insensitively.
func SearchConversations(ctx context.Context, s Store, query string) ([]ConversationMeta, error) {
	all, err := ListConversations(ctx, s)
	if err != nil || query == "" {
		return all, err
	}

	query = strings.ToLower(query)
	var results []ConversationMeta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Summary), query) {
			results = append(results, meta)
			continue
		}
		sc, err := LoadConversation(ctx, s, meta.ID)
		if err != nil {
			continue
		}
		for _, msg := range sc.Messages {
			if strings.Contains(strings.ToLower(msg.Content), query) {
				results = append(results, meta)
				break
			}
		}
	}
	return results, nil
}

// PruneConversations deletes the least recently updated conversations
// beyond keep. keep <= 0 keeps everything. Returns the number removed.
func PruneConversations(ctx context.Context, s Store, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	metas, err := ListConversations(ctx, s)
	if err != nil || len(metas) <= keep {
		return 0, err
	}

	removed := 0
	for _, meta := range metas[keep:] {
		if err := s.Delete(ctx, ConversationKey(meta.ID)); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
