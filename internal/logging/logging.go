// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the application's slog logger. The terminal UI
// owns stdout and stderr, so log records go to a file or nowhere.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options selects the sink and verbosity.
type Options struct {
	// Path of the log file. Empty disables logging.
	Path string
	// Level is one of debug, info, warn, error (default info).
	Level string
	// JSON switches to the JSON handler.
	JSON bool
}

// Logger is a slog.Logger bound to a file that must be closed.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// New opens the log file in append mode.
func New(opts Options) (*Logger, error) {
	if opts.Path == "" {
		return Discard(), nil
	}
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Logger{Logger: slog.New(newHandler(f, level, opts.JSON)), closer: f}, nil
}

// NewWriter logs to w. Used by the line-mode commands and tests.
func NewWriter(w io.Writer, level slog.Level, json bool) *Logger {
	return &Logger{Logger: slog.New(newHandler(w, level, json))}
}

// Close releases the log file.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// ParseLevel maps a config string to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func newHandler(w io.Writer, level slog.Level, json bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
