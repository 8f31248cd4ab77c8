// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks user activity and saves conversations.
//
// Tracker is the idle source for the persistence queue: debounced writes
// wait until the user stops typing or scrolling. Autosaver is the commit
// hook the chat view calls after every change to the conversation.
//
//	tracker := session.NewTracker(0)
//	q := persist.New(store, cfg, persist.WithIdleScheduler(tracker))
//	saver := session.NewAutosaver(q, logger)
//	defer saver.Close()
//
//	tracker.RecordActivity()
//	saver.Commit(conv)
package session
