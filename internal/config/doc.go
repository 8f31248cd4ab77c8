// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the openbook configuration.
//
// The file lives at ~/.openbook/config.toml (OPENBOOK_HOME overrides the
// directory). Missing keys keep their defaults, OPENBOOK_* environment
// variables override the file, and Validate reports every invalid field at
// once as ValidateErrors.
//
// # Usage
//
//	cfg, err := config.Load()
//	driver := transcript.NewDriver(cfg.ToTranscriptConfig())
//	queue := persist.New(store, cfg.ToPersistConfig())
//
// Hot reload:
//
//	w, err := config.Watch(path, 0, func(cfg *config.Config, err error) { ... })
//	defer w.Close()
package config
