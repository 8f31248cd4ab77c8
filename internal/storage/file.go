// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PointerLife/openbook/internal/persist"
	"github.com/PointerLife/openbook/internal/util"
)

const fileExt = ".json"

// FileBackend stores one file per key under BaseDir. Keys map to relative
// paths, so "conversations/abc" lands in BaseDir/conversations/abc.json.
type FileBackend struct {
	BaseDir string
}

// NewFileBackend creates baseDir if needed.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileBackend{BaseDir: baseDir}, nil
}

// Write replaces the value for key atomically.
func (b *FileBackend) Write(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.path(key)
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, payload, 0o600)
}

// Read returns the stored value or persist.ErrNotFound.
func (b *FileBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persist.ErrNotFound
	}
	return data, err
}

// Keys lists stored keys starting with prefix, sorted.
func (b *FileBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(b.BaseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(b.BaseDir, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), fileExt)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key. Deleting a missing key returns persist.ErrNotFound.
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persist.ErrNotFound
		}
		return err
	}
	return nil
}

// Close is a no-op.
func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.BaseDir, filepath.FromSlash(key)+fileExt), nil
}
