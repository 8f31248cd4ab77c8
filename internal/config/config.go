// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for openbook.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/PointerLife/openbook/internal/persist"
	"github.com/PointerLife/openbook/internal/transcript"
	"github.com/PointerLife/openbook/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete openbook configuration.
type Config struct {
	// General settings
	Version      string `toml:"version" json:"version"`
	DefaultModel string `toml:"default_model" json:"default_model"`

	// Local (Ollama) configuration
	Local LocalConfig `toml:"local" json:"local"`

	// Transcript virtualization, in terminal lines
	Transcript TranscriptConfig `toml:"transcript" json:"transcript"`

	// Conversation persistence
	Persistence PersistenceConfig `toml:"persistence" json:"persistence"`

	UI      UIConfig      `toml:"ui" json:"ui"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`
}

// LocalConfig contains Ollama settings.
type LocalConfig struct {
	OllamaURL   string `toml:"ollama_url" json:"ollama_url"`
	OllamaModel string `toml:"ollama_model" json:"ollama_model"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// TranscriptConfig tunes the windowed transcript. Heights are terminal
// lines; the estimate is only used until a message has been rendered once.
type TranscriptConfig struct {
	Overscan        int `toml:"overscan" json:"overscan"`
	FollowThreshold int `toml:"follow_threshold" json:"follow_threshold"`
	CacheSize       int `toml:"cache_size" json:"cache_size"`

	EstimateBase          int `toml:"estimate_base" json:"estimate_base"`
	EstimateLongChars     int `toml:"estimate_long_chars" json:"estimate_long_chars"`
	EstimateLongLines     int `toml:"estimate_long_lines" json:"estimate_long_lines"`
	EstimateVeryLongChars int `toml:"estimate_very_long_chars" json:"estimate_very_long_chars"`
	EstimateVeryLongLines int `toml:"estimate_very_long_lines" json:"estimate_very_long_lines"`
	EstimateCodeLines     int `toml:"estimate_code_lines" json:"estimate_code_lines"`
	EstimateImageLines    int `toml:"estimate_image_lines" json:"estimate_image_lines"`
	EstimateToolLines     int `toml:"estimate_tool_lines" json:"estimate_tool_lines"`
}

// PersistenceConfig selects the backend and the write queue timings.
type PersistenceConfig struct {
	// Backend is one of "file", "sqlite", "memory".
	Backend      string `toml:"backend" json:"backend"`
	Dir          string `toml:"dir" json:"dir"`
	DatabasePath string `toml:"database_path" json:"database_path"`

	DebounceMs      int     `toml:"debounce_ms" json:"debounce_ms"`
	MaxDelayMs      int     `toml:"max_delay_ms" json:"max_delay_ms"`
	IdleTimeoutMs   int     `toml:"idle_timeout_ms" json:"idle_timeout_ms"`
	IdleThresholdMs int     `toml:"idle_threshold_ms" json:"idle_threshold_ms"`
	MaxRetries      int     `toml:"max_retries" json:"max_retries"`
	RetryBackoffMs  int     `toml:"retry_backoff_ms" json:"retry_backoff_ms"`
	MaxBackoffMs    int     `toml:"max_backoff_ms" json:"max_backoff_ms"`
	WritesPerSecond float64 `toml:"writes_per_second" json:"writes_per_second"`

	// KeepConversations prunes older conversations on startup (0 = keep all).
	KeepConversations int `toml:"keep_conversations" json:"keep_conversations"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme          string `toml:"theme" json:"theme"`
	ShowTimestamps bool   `toml:"show_timestamps" json:"show_timestamps"`
	ShowStats      bool   `toml:"show_stats" json:"show_stats"`
	// StreamFPS caps how often streamed tokens reach the transcript.
	StreamFPS int `toml:"stream_fps" json:"stream_fps"`
}

// LoggingConfig contains log file settings.
type LoggingConfig struct {
	Path  string `toml:"path" json:"path"`
	Level string `toml:"level" json:"level"`
	JSON  bool   `toml:"json" json:"json"`
}

// MetricsConfig contains the debug HTTP server settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Addr    string `toml:"addr" json:"addr"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values. Paths are left
// empty and resolved against ConfigDir by SetDefaults.
func Default() *Config {
	return &Config{
		Version:      "1.0.0",
		DefaultModel: "qwen2.5-coder:7b",

		Local: LocalConfig{
			OllamaURL:   "http://127.0.0.1:11434",
			OllamaModel: "qwen2.5-coder:7b",
			TimeoutSecs: 30,
		},

		Transcript: TranscriptConfig{
			Overscan:              transcript.DefaultOverscan,
			FollowThreshold:       3,
			CacheSize:             transcript.DefaultCacheSize,
			EstimateBase:          4,
			EstimateLongChars:     500,
			EstimateLongLines:     4,
			EstimateVeryLongChars: 1000,
			EstimateVeryLongLines: 10,
			EstimateCodeLines:     8,
			EstimateImageLines:    3,
			EstimateToolLines:     2,
		},

		Persistence: PersistenceConfig{
			Backend:         "file",
			DebounceMs:      1000,
			MaxDelayMs:      5000,
			IdleTimeoutMs:   1000,
			IdleThresholdMs: 750,
			MaxRetries:      3,
			RetryBackoffMs:  250,
			MaxBackoffMs:    5000,
		},

		UI: UIConfig{
			Theme:          "dark",
			ShowTimestamps: true,
			ShowStats:      true,
			StreamFPS:      30,
		},

		Logging: LoggingConfig{
			Level: "info",
		},

		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9477",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the openbook configuration directory path.
// OPENBOOK_HOME overrides the default ~/.openbook.
func ConfigDir() (string, error) {
	if dir := os.Getenv("OPENBOOK_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".openbook"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the default config file if it exists, then applies env
// overrides, defaults and validation.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg := Default()
		return finish(cfg)
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

// Parse decodes TOML text. Used by tests and `config validate`.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.SetDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values and resolves storage paths.
func (c *Config) SetDefaults() error {
	def := Default()

	if c.Version == "" {
		c.Version = def.Version
	}
	if c.DefaultModel == "" {
		c.DefaultModel = def.DefaultModel
	}
	if c.Local.OllamaURL == "" {
		c.Local.OllamaURL = def.Local.OllamaURL
	}
	if c.Local.OllamaModel == "" {
		c.Local.OllamaModel = c.DefaultModel
	}
	if c.Local.TimeoutSecs == 0 {
		c.Local.TimeoutSecs = def.Local.TimeoutSecs
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = def.Persistence.Backend
	}
	if c.UI.Theme == "" {
		c.UI.Theme = def.UI.Theme
	}
	if c.UI.StreamFPS == 0 {
		c.UI.StreamFPS = def.UI.StreamFPS
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = def.Metrics.Addr
	}

	if c.Persistence.Dir == "" || c.Persistence.DatabasePath == "" {
		dir, err := ConfigDir()
		if err != nil {
			return err
		}
		if c.Persistence.Dir == "" {
			c.Persistence.Dir = filepath.Join(dir, "conversations")
		}
		if c.Persistence.DatabasePath == "" {
			c.Persistence.DatabasePath = filepath.Join(dir, "openbook.db")
		}
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes cfg to path atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# openbook configuration file\n")
	buf.WriteString("# Transcript heights are in terminal lines.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate returns ValidateErrors listing every invalid field, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Local
	if u, err := url.Parse(c.Local.OllamaURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("local.ollama_url", "invalid URL '%s'", c.Local.OllamaURL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("local.ollama_url", "scheme must be http or https, got '%s'", u.Scheme)
	}
	if c.Local.TimeoutSecs < 0 {
		add("local.timeout_secs", "must not be negative")
	}

	// Transcript
	t := c.Transcript
	if t.Overscan < 0 {
		add("transcript.overscan", "must not be negative")
	}
	if t.FollowThreshold < 0 {
		add("transcript.follow_threshold", "must not be negative")
	}
	if t.CacheSize < 0 {
		add("transcript.cache_size", "must not be negative")
	}
	if t.EstimateBase < 0 {
		add("transcript.estimate_base", "must not be negative")
	}
	if t.EstimateVeryLongChars != 0 && t.EstimateVeryLongChars < t.EstimateLongChars {
		add("transcript.estimate_very_long_chars", "must be at least estimate_long_chars (%d)", t.EstimateLongChars)
	}

	// Persistence
	p := c.Persistence
	switch p.Backend {
	case "file", "sqlite", "memory":
	default:
		add("persistence.backend", "invalid backend '%s', must be one of: file, sqlite, memory", p.Backend)
	}
	for field, v := range map[string]int{
		"persistence.debounce_ms":       p.DebounceMs,
		"persistence.max_delay_ms":      p.MaxDelayMs,
		"persistence.idle_timeout_ms":   p.IdleTimeoutMs,
		"persistence.idle_threshold_ms": p.IdleThresholdMs,
		"persistence.retry_backoff_ms":  p.RetryBackoffMs,
		"persistence.max_backoff_ms":    p.MaxBackoffMs,
	} {
		if v < 0 {
			add(field, "must not be negative")
		}
	}
	if p.MaxDelayMs > 0 && p.MaxDelayMs < p.DebounceMs {
		add("persistence.max_delay_ms", "must be at least debounce_ms (%d)", p.DebounceMs)
	}
	if p.WritesPerSecond < 0 {
		add("persistence.writes_per_second", "must not be negative")
	}
	if p.KeepConversations < 0 {
		add("persistence.keep_conversations", "must not be negative")
	}

	// UI
	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme)
	}
	if c.UI.StreamFPS < 1 || c.UI.StreamFPS > 120 {
		add("ui.stream_fps", "must be between 1 and 120, got %d", c.UI.StreamFPS)
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level", "invalid level '%s'", c.Logging.Level)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// ToTranscriptConfig converts to the driver configuration.
func (c *Config) ToTranscriptConfig() transcript.Config {
	t := c.Transcript
	return transcript.Config{
		Overscan:        t.Overscan,
		FollowThreshold: t.FollowThreshold,
		CacheSize:       t.CacheSize,
		Estimate: transcript.EstimateConfig{
			Base:                t.EstimateBase,
			LongThreshold:       t.EstimateLongChars,
			LongIncrement:       t.EstimateLongLines,
			VeryLongThreshold:   t.EstimateVeryLongChars,
			VeryLongIncrement:   t.EstimateVeryLongLines,
			CodeIncrement:       t.EstimateCodeLines,
			ImageIncrement:      t.EstimateImageLines,
			ToolResultIncrement: t.EstimateToolLines,
		},
	}
}

// ToPersistConfig converts to the write queue configuration.
func (c *Config) ToPersistConfig() persist.Config {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	p := c.Persistence
	return persist.Config{
		Debounce:        ms(p.DebounceMs),
		MaxDelay:        ms(p.MaxDelayMs),
		IdleTimeout:     ms(p.IdleTimeoutMs),
		MaxRetries:      p.MaxRetries,
		RetryBackoff:    ms(p.RetryBackoffMs),
		MaxBackoff:      ms(p.MaxBackoffMs),
		WritesPerSecond: p.WritesPerSecond,
	}
}

// IdleThreshold is how long without input counts as idle.
func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.Persistence.IdleThresholdMs) * time.Millisecond
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - OPENBOOK_MODEL: overrides default_model and local.ollama_model
//   - OPENBOOK_OLLAMA_URL: overrides local.ollama_url
//   - OPENBOOK_STORE: overrides persistence.backend
//   - OPENBOOK_STORE_DIR: overrides persistence.dir
//   - OPENBOOK_DB: overrides persistence.database_path
//   - OPENBOOK_LOG: overrides logging.path
//   - OPENBOOK_LOG_LEVEL: overrides logging.level
//   - OPENBOOK_METRICS_ADDR: overrides metrics.addr and enables metrics
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("OPENBOOK_MODEL"); model != "" {
		c.DefaultModel = model
		c.Local.OllamaModel = model
	}
	if u := os.Getenv("OPENBOOK_OLLAMA_URL"); u != "" {
		c.Local.OllamaURL = u
	}
	if b := os.Getenv("OPENBOOK_STORE"); b != "" {
		c.Persistence.Backend = b
	}
	if d := os.Getenv("OPENBOOK_STORE_DIR"); d != "" {
		c.Persistence.Dir = d
	}
	if db := os.Getenv("OPENBOOK_DB"); db != "" {
		c.Persistence.DatabasePath = db
	}
	if p := os.Getenv("OPENBOOK_LOG"); p != "" {
		c.Logging.Path = p
	}
	if l := os.Getenv("OPENBOOK_LOG_LEVEL"); l != "" {
		c.Logging.Level = l
	}
	if addr := os.Getenv("OPENBOOK_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
		c.Metrics.Enabled = true
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value by its TOML key, e.g.
// "persistence.debounce_ms".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a configuration value by its TOML key. String values are
// parsed into the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	return tag
}

// setFieldValue sets a reflect.Value from an any value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %w", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %w", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// AllKeys returns every settable key in dot notation, in declaration order.
func AllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + tomlName(f)
			if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// String returns the config as indented JSON for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
