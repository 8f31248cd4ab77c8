// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// runtime.go - Wires logging, storage and the autosave queue for the
// interactive commands.

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/PointerLife/openbook/internal/config"
	"github.com/PointerLife/openbook/internal/logging"
	"github.com/PointerLife/openbook/internal/persist"
	"github.com/PointerLife/openbook/internal/session"
	"github.com/PointerLife/openbook/internal/storage"
)

// runtime is everything a chat session writes through.
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   storage.Store
	tracker *session.Tracker
	queue   *persist.Queue
	saver   *session.Autosaver
}

// openStore opens the configured conversation store.
func openStore(cfg *config.Config) (storage.Store, error) {
	store, err := storage.Open(storage.Options{
		Kind: cfg.Persistence.Backend,
		Dir:  cfg.Persistence.Dir,
		Path: cfg.Persistence.DatabasePath,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Persistence.Backend, err)
	}
	return store, nil
}

// openRuntime builds the session stack. onFailure receives writes that
// exhausted their retries; it may be called from any goroutine.
func (a *app) openRuntime(ctx context.Context, onFailure persist.FailureFunc) (*runtime, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Path:  cfg.Logging.Path,
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.JSON,
	})
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Close()
		return nil, err
	}

	if keep := cfg.Persistence.KeepConversations; keep > 0 {
		removed, err := storage.PruneConversations(ctx, store, keep)
		if err != nil {
			logger.Warn("prune conversations failed", "error", err)
		} else if removed > 0 {
			logger.Info("pruned old conversations", "removed", removed, "keep", keep)
		}
	}

	tracker := session.NewTracker(cfg.IdleThreshold())

	opts := []persist.Option{
		persist.WithIdleScheduler(tracker),
		persist.WithLogger(logger.Logger),
	}
	if onFailure != nil {
		opts = append(opts, persist.WithFailureHandler(onFailure))
	}
	queue := persist.New(store, cfg.ToPersistConfig(), opts...)

	logger.Info("session started",
		"session", tracker.SessionID(),
		"backend", cfg.Persistence.Backend,
		"model", cfg.Local.OllamaModel)

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		tracker: tracker,
		queue:   queue,
		saver:   session.NewAutosaver(queue, logger.Logger),
	}, nil
}

// Close flushes pending writes, then closes the store and the log.
func (r *runtime) Close() error {
	var errs []error
	if err := r.saver.Close(); err != nil {
		errs = append(errs, fmt.Errorf("flush conversations: %w", err))
	}
	if err := r.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	r.logger.Info("session ended", "session", r.tracker.SessionID())
	if err := r.logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
