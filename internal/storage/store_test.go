// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// BACKEND CONFORMANCE
// =============================================================================

func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("file backend: %v", err)
	}
	sqliteStore, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "openbook.db"))
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
		"memory": NewMemoryBackend(),
	}
}

func TestBackends_ReadWrite(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Read(ctx, "conversations/missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Read missing = %v, want ErrNotFound", err)
			}

			if err := s.Write(ctx, "conversations/a", []byte("v1")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := s.Write(ctx, "conversations/a", []byte("v2")); err != nil {
				t.Fatalf("Write: %v", err)
			}

			got, err := s.Read(ctx, "conversations/a")
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if string(got) != "v2" {
				t.Errorf("Read = %q, want %q", got, "v2")
			}
		})
	}
}

func TestBackends_KeysAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"conversations/b", "conversations/a", "drafts/x"} {
				if err := s.Write(ctx, k, []byte(k)); err != nil {
					t.Fatalf("Write %s: %v", k, err)
				}
			}

			keys, err := s.Keys(ctx, ConversationPrefix)
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(keys) != 2 || keys[0] != "conversations/a" || keys[1] != "conversations/b" {
				t.Errorf("Keys = %v", keys)
			}

			if err := s.Delete(ctx, "conversations/a"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, "conversations/a"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Delete = %v, want ErrNotFound", err)
			}

			all, err := s.Keys(ctx, "")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(all) != 2 {
				t.Errorf("Keys(\"\") = %v, want 2 keys", all)
			}
		})
	}
}

func TestBackends_RejectInvalidKeys(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"", "/abs", "../escape", "a/../b", "a//b", ".hidden", `a\b`} {
				if err := s.Write(ctx, k, []byte("x")); !errors.Is(err, ErrInvalidKey) {
					t.Errorf("Write(%q) = %v, want ErrInvalidKey", k, err)
				}
			}
		})
	}
}

func TestFileBackend_Layout(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Write(context.Background(), "conversations/conv_1", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "conversations", "conv_1.json")); err != nil {
		t.Errorf("expected file on disk: %v", err)
	}
}

func TestSQLiteBackend_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openbook.db")
	ctx := context.Background()

	b, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Write(ctx, "conversations/a", []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	b, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	got, err := b.Read(ctx, "conversations/a")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "persisted" {
		t.Errorf("Read = %q", got)
	}
}

func TestMemoryBackend_FailWith(t *testing.T) {
	b := NewMemoryBackend()
	boom := errors.New("disk full")
	b.FailWith(func(key string) error {
		if key == "conversations/bad" {
			return boom
		}
		return nil
	})

	ctx := context.Background()
	if err := b.Write(ctx, "conversations/bad", nil); !errors.Is(err, boom) {
		t.Errorf("Write bad = %v, want %v", err, boom)
	}
	if err := b.Write(ctx, "conversations/good", nil); err != nil {
		t.Errorf("Write good = %v", err)
	}

	b.FailWith(nil)
	if err := b.Write(ctx, "conversations/bad", nil); err != nil {
		t.Errorf("Write after clear = %v", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"file", Options{Kind: KindFile, Dir: dir}, false},
		{"default kind is file", Options{Dir: dir}, false},
		{"sqlite", Options{Kind: KindSQLite, Path: filepath.Join(dir, "kv.db")}, false},
		{"memory", Options{Kind: KindMemory}, false},
		{"file without dir", Options{Kind: KindFile}, true},
		{"sqlite without path", Options{Kind: KindSQLite}, true},
		{"unknown", Options{Kind: "redis"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open err = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}
