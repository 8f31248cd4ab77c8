// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - The full-screen chat view.
//
// Command: chat (also the default when no command is given)
// Short:   Open the chat view
//
// Examples:
//   openbook                          New conversation
//   openbook chat --resume <id>       Continue a saved conversation
//   openbook -m llama3.2:3b           Chat with a specific model
//
// When metrics.enabled is set, the debug server runs next to the view
// and stops with it.

package cli

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/PointerLife/openbook/internal/config"
	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/ollama"
	"github.com/PointerLife/openbook/internal/server"
	"github.com/PointerLife/openbook/internal/storage"
	"github.com/PointerLife/openbook/internal/ui/chat"
	"github.com/PointerLife/openbook/internal/ui/styles"
)

func (a *app) chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat view",
		Args:  cobra.NoArgs,
		RunE:  a.runChat,
	}
	cmd.Flags().String("resume", "", "resume the conversation with this ID")
	return cmd
}

func (a *app) runChat(cmd *cobra.Command, args []string) error {
	if err := RequiresTTY("open the chat view"); err != nil {
		return err
	}
	resume, _ := cmd.Flags().GetString("resume")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// The program does not exist yet when the queue starts, and failures
	// arrive on queue goroutines.
	var program atomic.Pointer[tea.Program]
	send := func(msg tea.Msg) {
		if p := program.Load(); p != nil {
			p.Send(msg)
		}
	}

	rt, err := a.openRuntime(ctx, func(key string, err error) {
		send(chat.SaveFailedMsg{Key: key, Err: err})
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.cfg

	conv, err := loadConversation(ctx, rt, resume)
	if err != nil {
		return err
	}

	client := newOllamaClient(cfg)
	if err := client.CheckRunning(ctx); err != nil {
		rt.logger.Warn("ollama not reachable", "url", cfg.Local.OllamaURL, "error", err)
	} else if err := client.CheckModel(ctx, cfg.Local.OllamaModel); err != nil {
		rt.logger.Warn("model check failed", "model", cfg.Local.OllamaModel, "error", err)
	}

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.Apply()

	m := chat.New(conv, client, rt.saver, rt.tracker, chat.Options{
		ModelName:      cfg.Local.OllamaModel,
		ShowTimestamps: cfg.UI.ShowTimestamps,
		ShowStats:      cfg.UI.ShowStats,
		StreamFPS:      cfg.UI.StreamFPS,
		Transcript:     cfg.ToTranscriptConfig(),
		Theme:          theme,
		Logger:         rt.logger.Logger,
	})

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	program.Store(p)

	if a.configFileExists() {
		path, _ := a.path()
		w, err := config.Watch(path, config.DefaultWatchDebounce, func(_ *config.Config, err error) {
			if err != nil {
				send(chat.NoticeMsg{Text: "config reload failed: " + err.Error(), Error: true})
				return
			}
			send(chat.NoticeMsg{Text: "config changed; restart to apply"})
		})
		if err != nil {
			rt.logger.Warn("config watch failed", "error", err)
		} else {
			defer w.Close()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		final, err := p.Run()
		if err != nil {
			return err
		}
		if fm, ok := final.(chat.Model); ok {
			if err := rt.saver.Flush(fm.Conversation().ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				rt.logger.Warn("final flush failed", "error", err)
			}
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		srv := server.New(cfg.Metrics.Addr,
			server.WithLogger(rt.logger.Logger),
			server.WithHealthChecker(client),
			server.WithQueue(rt.queue),
			server.WithSession(rt.tracker),
		)
		g.Go(func() error {
			if err := srv.ListenAndServe(gctx); err != nil {
				rt.logger.Warn("debug server stopped", "addr", cfg.Metrics.Addr, "error", err)
				send(chat.NoticeMsg{Text: "debug server: " + err.Error(), Error: true})
			}
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// loadConversation resumes id, or starts a new conversation when id is
// empty.
func loadConversation(ctx context.Context, rt *runtime, id string) (*model.Conversation, error) {
	if id == "" {
		return model.NewConversationWithModel(rt.cfg.Local.OllamaModel), nil
	}
	conv, err := rt.saver.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, NewNotFoundError("conversation", id)
	}
	if err != nil {
		return nil, NewCommandError("chat", "resume", "could not load conversation", err)
	}
	return conv, nil
}

func newOllamaClient(cfg *config.Config) *ollama.Client {
	return ollama.NewClient(ollama.ClientConfig{
		BaseURL:      cfg.Local.OllamaURL,
		Timeout:      time.Duration(cfg.Local.TimeoutSecs) * time.Second,
		DefaultModel: cfg.Local.OllamaModel,
	})
}
