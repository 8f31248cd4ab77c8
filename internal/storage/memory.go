// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/PointerLife/openbook/internal/persist"
)

// MemoryBackend keeps values in a map. Used for ephemeral sessions and tests.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string][]byte
	failFn func(key string) error
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// FailWith makes every Write consult fn first; a non-nil result is returned
// instead of storing. Pass nil to clear.
func (b *MemoryBackend) FailWith(fn func(key string) error) {
	b.mu.Lock()
	b.failFn = fn
	b.mu.Unlock()
}

func (b *MemoryBackend) Write(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFn != nil {
		if err := b.failFn(key); err != nil {
			return err
		}
	}
	b.data[key] = append([]byte(nil), payload...)
	return nil
}

func (b *MemoryBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, persist.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *MemoryBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; !ok {
		return persist.ErrNotFound
	}
	delete(b.data, key)
	return nil
}

func (b *MemoryBackend) Close() error { return nil }
