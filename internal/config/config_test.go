// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENBOOK_HOME", dir)
	for _, k := range []string{"OPENBOOK_MODEL", "OPENBOOK_OLLAMA_URL", "OPENBOOK_STORE", "OPENBOOK_STORE_DIR",
		"OPENBOOK_DB", "OPENBOOK_LOG", "OPENBOOK_LOG_LEVEL", "OPENBOOK_METRICS_ADDR"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestConfig_Default(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Persistence.Backend)
	assert.Equal(t, filepath.Join(dir, "conversations"), cfg.Persistence.Dir)
	assert.Equal(t, filepath.Join(dir, "openbook.db"), cfg.Persistence.DatabasePath)
	assert.Equal(t, 30, cfg.UI.StreamFPS)
	assert.NoError(t, cfg.Validate())
}

func TestParse_KeepsDefaultsForMissingKeys(t *testing.T) {
	isolate(t)

	cfg, err := Parse([]byte(`
default_model = "llama3"

[persistence]
backend = "sqlite"
debounce_ms = 250
max_delay_ms = 2000
`))
	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.DefaultModel)
	assert.Equal(t, "sqlite", cfg.Persistence.Backend)
	assert.Equal(t, 250, cfg.Persistence.DebounceMs)
	assert.Equal(t, 3, cfg.Persistence.MaxRetries)
	assert.Equal(t, 4, cfg.Transcript.EstimateBase)
}

func TestConfig_Validate(t *testing.T) {
	isolate(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad url", func(c *Config) { c.Local.OllamaURL = "not a url" }, "local.ollama_url"},
		{"bad scheme", func(c *Config) { c.Local.OllamaURL = "ftp://host" }, "local.ollama_url"},
		{"negative overscan", func(c *Config) { c.Transcript.Overscan = -1 }, "transcript.overscan"},
		{"very long below long", func(c *Config) { c.Transcript.EstimateVeryLongChars = 10 }, "transcript.estimate_very_long_chars"},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "redis" }, "persistence.backend"},
		{"max delay below debounce", func(c *Config) { c.Persistence.MaxDelayMs = 10 }, "persistence.max_delay_ms"},
		{"negative debounce", func(c *Config) { c.Persistence.DebounceMs = -5 }, "persistence.debounce_ms"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"fps", func(c *Config) { c.UI.StreamFPS = 0 }, "ui.stream_fps"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.SetDefaults())
			tt.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)

			var fields []string
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestConfig_ValidateReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.UI.Theme = "neon"
	cfg.Persistence.Backend = "redis"

	err := cfg.Validate()
	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.Contains(t, err.Error(), "; ")
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OPENBOOK_MODEL", "mistral")
	t.Setenv("OPENBOOK_STORE", "memory")
	t.Setenv("OPENBOOK_METRICS_ADDR", "127.0.0.1:9999")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.DefaultModel)
	assert.Equal(t, "mistral", cfg.Local.OllamaModel)
	assert.Equal(t, "memory", cfg.Persistence.Backend)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Metrics.Addr)
}

func TestConfig_SaveAndLoad(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.UI.Theme = "light"
	cfg.Persistence.KeepConversations = 50
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "light", loaded.UI.Theme)
	assert.Equal(t, 50, loaded.Persistence.KeepConversations)
}

func TestLoadFromPath_InvalidFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ui\ntheme = "), 0o600))

	_, err := LoadFromPath(path)
	assert.Error(t, err)
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("persistence.debounce_ms")
	require.NoError(t, err)
	assert.Equal(t, 1000, v)

	require.NoError(t, cfg.Set("persistence.debounce_ms", "400"))
	assert.Equal(t, 400, cfg.Persistence.DebounceMs)

	require.NoError(t, cfg.Set("ui.show_stats", "false"))
	assert.False(t, cfg.UI.ShowStats)

	require.NoError(t, cfg.Set("persistence.writes_per_second", 2.5))
	assert.Equal(t, 2.5, cfg.Persistence.WritesPerSecond)

	require.NoError(t, cfg.Set("transcript.overscan", 7))
	assert.Equal(t, 7, cfg.Transcript.Overscan)

	_, err = cfg.Get("ui")
	assert.Error(t, err)
	_, err = cfg.Get("nope.key")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("persistence.debounce_ms", "soon"))
	assert.Error(t, cfg.Set("ui.show_stats", "maybe"))
}

func TestAllKeys(t *testing.T) {
	keys := AllKeys()
	assert.Contains(t, keys, "default_model")
	assert.Contains(t, keys, "transcript.follow_threshold")
	assert.Contains(t, keys, "persistence.idle_threshold_ms")
	assert.Contains(t, keys, "metrics.addr")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg := Default()

	tc := cfg.ToTranscriptConfig()
	assert.Equal(t, 3, tc.FollowThreshold)
	assert.Equal(t, 4, tc.Estimate.Base)
	assert.Equal(t, 8, tc.Estimate.CodeIncrement)

	pc := cfg.ToPersistConfig()
	assert.Equal(t, time.Second, pc.Debounce)
	assert.Equal(t, 5*time.Second, pc.MaxDelay)
	assert.Equal(t, 250*time.Millisecond, pc.RetryBackoff)
	assert.Equal(t, 750*time.Millisecond, cfg.IdleThreshold())
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	reloaded := make(chan *Config, 4)
	w, err := Watch(path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			reloaded <- cfg
		}
	})
	require.NoError(t, err)
	defer w.Close()

	cfg := Default()
	cfg.UI.Theme = "light"
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case got := <-reloaded:
		assert.Equal(t, "light", got.UI.Theme)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
