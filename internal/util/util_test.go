// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile_CreatesAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "conv.json")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0o600))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0o600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAtomicWriteFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		require.NoError(t, AtomicWriteFile(filepath.Join(dir, "a.json"), []byte(strings.Repeat("x", i)), 0o644))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.json", entries[0].Name())
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"hello", 2, "he"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TruncateRunes(tt.in, tt.max), tt.in)
	}
}

func TestTruncateWidth_WideRunes(t *testing.T) {
	assert.Equal(t, "日本", TruncateWidth("日本", 4))
	assert.Equal(t, "日...", TruncateWidth("日本語です", 6))
	assert.LessOrEqual(t, StringWidth(TruncateWidth("日本語です", 5)), 5)
	assert.Equal(t, "", TruncateWidth("abc", 0))
}

func TestStringWidth(t *testing.T) {
	assert.Equal(t, 5, StringWidth("hello"))
	assert.Equal(t, 4, StringWidth("日本"))
	assert.Equal(t, 0, StringWidth(""))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", PadRight("ab", 5))
	assert.Equal(t, "日 ", PadRight("日", 3))
}

func TestWrap(t *testing.T) {
	assert.Equal(t, []string{"the quick", "brown fox"}, Wrap("the quick brown fox", 10))
	assert.Equal(t, []string{"a", "", "b"}, Wrap("a\n\nb", 10))
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, Wrap("abcdefghij", 4))
	assert.Equal(t, []string{"日本", "語"}, Wrap("日本語", 4))
	assert.Equal(t, []string{"x y"}, Wrap("x y", 0))
}
