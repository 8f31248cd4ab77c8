// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// conversations.go - Saved conversation commands.
//
// Commands:
//   list                    List saved conversations, newest first
//   search <query>          Find conversations by text
//   show <id>               Print a conversation as markdown
//   export <id> [file]      Write a conversation as markdown, HTML or JSON
//   delete <id>             Delete a conversation
//
// list, search and show accept --json.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PointerLife/openbook/internal/export"
	"github.com/PointerLife/openbook/internal/storage"
	"github.com/PointerLife/openbook/internal/util"
)

// withStore opens the configured store for the duration of fn.
func (a *app) withStore(fn func(ctx context.Context, s storage.Store) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(context.Background(), s)
}

// loadStored loads one conversation, mapping a missing key to NotFoundError.
func loadStored(ctx context.Context, s storage.Store, id string) (*storage.StoredConversation, error) {
	conv, err := storage.LoadConversation(ctx, s, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, NewNotFoundError("conversation", id)
	}
	return conv, err
}

// =============================================================================
// LIST / SEARCH
// =============================================================================

func (a *app) listCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved conversations, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return NewValidationError("limit", fmt.Sprint(limit), "must not be negative")
			}
			return a.withStore(func(ctx context.Context, s storage.Store) error {
				return OutputJSON(cmd.OutOrStdout(), a.jsonOut, "list", func() (any, error) {
					metas, err := storage.ListConversations(ctx, s)
					if err != nil {
						return nil, err
					}
					if limit > 0 && len(metas) > limit {
						metas = metas[:limit]
					}
					if !a.jsonOut {
						printConversationTable(cmd.OutOrStdout(), metas)
					}
					return metas, nil
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many (0 for all)")
	return cmd
}

func (a *app) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find conversations by text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return a.withStore(func(ctx context.Context, s storage.Store) error {
				return OutputJSON(cmd.OutOrStdout(), a.jsonOut, "search", func() (any, error) {
					metas, err := storage.SearchConversations(ctx, s, query)
					if err != nil {
						return nil, err
					}
					if !a.jsonOut {
						printConversationTable(cmd.OutOrStdout(), metas)
					}
					return metas, nil
				})
			})
		},
	}
}

func printConversationTable(w io.Writer, metas []storage.ConversationMeta) {
	if len(metas) == 0 {
		fmt.Fprintln(w, DimStyle.Render("no conversations"))
		return
	}

	width := GetTerminalWidth()
	const idWidth, dateWidth, countWidth = 36, 16, 5
	summaryWidth := max(width-idWidth-dateWidth-countWidth-6, 10)

	header := fmt.Sprintf("%s  %s  %s  %s",
		util.PadRight("ID", idWidth),
		util.PadRight("UPDATED", dateWidth),
		util.PadRight("MSGS", countWidth),
		"SUMMARY")
	fmt.Fprintln(w, LabelStyle.UnsetWidth().Render(header))

	for _, m := range metas {
		fmt.Fprintf(w, "%s  %s  %s  %s\n",
			util.PadRight(util.TruncateWidth(m.ID, idWidth), idWidth),
			util.PadRight(m.UpdatedAt.Local().Format("2006-01-02 15:04"), dateWidth),
			util.PadRight(fmt.Sprint(m.MessageCount), countWidth),
			util.TruncateWidth(m.Summary, summaryWidth))
	}
}

// =============================================================================
// SHOW / EXPORT
// =============================================================================

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(ctx context.Context, s storage.Store) error {
				return OutputJSON(cmd.OutOrStdout(), a.jsonOut, "show", func() (any, error) {
					conv, err := loadStored(ctx, s, args[0])
					if err != nil {
						return nil, err
					}
					if !a.jsonOut {
						fmt.Fprint(cmd.OutOrStdout(), conv.ExportMarkdown())
					}
					return conv, nil
				})
			})
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var (
		format       string
		theme        string
		noMetadata   bool
		noTimestamps bool
	)
	cmd := &cobra.Command{
		Use:   "export <id> [file]",
		Short: "Write a conversation as markdown, HTML or JSON",
		Long: `Write a conversation to file, or to stdout when no file is given.
The format defaults to the file extension, then markdown. The file is
replaced atomically.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" && len(args) == 2 {
				format = export.FormatForPath(args[1])
			}
			opts := export.DefaultOptions()
			opts.IncludeMetadata = !noMetadata
			opts.IncludeTimestamps = !noTimestamps
			if theme != "" {
				opts.Theme = theme
			} else if cfg, err := a.config(); err == nil && cfg.UI.Theme == "light" {
				opts.Theme = "light"
			}
			exporter, err := export.New(format, opts)
			if err != nil {
				return NewValidationError("format", format, err.Error())
			}

			return a.withStore(func(ctx context.Context, s storage.Store) error {
				conv, err := loadStored(ctx, s, args[0])
				if err != nil {
					return err
				}
				if len(args) == 1 {
					data, err := exporter.Export(conv)
					if err != nil {
						return NewCommandError("export", "render", conv.ID, err)
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := export.ToFile(conv, exporter, args[1]); err != nil {
					return NewCommandError("export", "write", args[1], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s exported %s to %s\n", RenderStatus("ok"), conv.ID, args[1])
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "", "markdown, html or json")
	f.StringVar(&theme, "theme", "", "HTML theme: dark or light (default follows ui.theme)")
	f.BoolVar(&noMetadata, "no-metadata", false, "omit the metadata header and message stats")
	f.BoolVar(&noTimestamps, "no-timestamps", false, "omit per-message timestamps")
	return cmd
}

// =============================================================================
// DELETE
// =============================================================================

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return a.withStore(func(ctx context.Context, s storage.Store) error {
				if _, err := loadStored(ctx, s, id); err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()
				if err := s.Delete(ctx, storage.ConversationKey(id)); err != nil {
					return NewCommandError("delete", "remove", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", RenderStatus("ok"), id)
				return nil
			})
		},
	}
}
