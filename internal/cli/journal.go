// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// journal.go - Line-mode chat.
//
// Command: journal
// Short:   Chat line by line without the full-screen view
//
// Replies are printed as they stream and saved through the same autosave
// queue as the chat view. Works with piped input.
//
// Interactive Commands:
//   /help, /h           Show available commands
//   /history [n]        Show the last n messages (default 10)
//   /id                 Show the conversation ID
//   /title [text]       Show or set the conversation title
//   /save               Write the conversation now
//   /quit, /q           Exit
//   Ctrl+C              Stop the current reply, or exit at the prompt
//   Ctrl+D              Exit

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/PointerLife/openbook/internal/config"
	"github.com/PointerLife/openbook/internal/model"
	"github.com/PointerLife/openbook/internal/ollama"
	"github.com/PointerLife/openbook/internal/util"
)

const defaultHistoryLines = 10

func (a *app) journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Chat line by line without the full-screen view",
		Args:  cobra.NoArgs,
		RunE:  a.runJournal,
	}
	cmd.Flags().String("resume", "", "resume the conversation with this ID")
	return cmd
}

func (a *app) runJournal(cmd *cobra.Command, args []string) error {
	resume, _ := cmd.Flags().GetString("resume")
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rt, err := a.openRuntime(ctx, func(key string, err error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s save failed for %s: %v\n", ErrorStyle.Render("[ERROR]"), key, err)
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	conv, err := loadConversation(ctx, rt, resume)
	if err != nil {
		return err
	}

	client := newOllamaClient(rt.cfg)
	if err := client.CheckRunning(ctx); err != nil {
		return err
	}
	if err := client.CheckModel(ctx, rt.cfg.Local.OllamaModel); err != nil {
		return err
	}

	j := &journal{
		out:       out,
		client:    client,
		saver:     rt.saver,
		activity:  rt.tracker,
		conv:      conv,
		model:     rt.cfg.Local.OllamaModel,
		showStats: rt.cfg.UI.ShowStats,
	}

	input := newLineInput()
	defer input.Close()

	// First Ctrl+C during a reply stops the reply. At the prompt liner
	// reports it as ErrPromptAborted.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if j.stop() {
				fmt.Fprintln(out, "\n"+WarningStyle.Render("[stopped]"))
			}
		}
	}()

	fmt.Fprintf(out, "%s %s\n", TitleStyle.Render("openbook journal"), DimStyle.Render(j.model))
	fmt.Fprintln(out, DimStyle.Render("conversation "+conv.ID+" | /help for commands"))
	if n := len(conv.Messages); n > 0 {
		j.printHistory(defaultHistoryLines)
	}

	for {
		line, err := input.ReadInput(PromptStyle.Render("> "))
		if err != nil {
			// Ctrl+C, Ctrl+D or closed stdin
			fmt.Fprintln(out)
			return nil
		}
		quit, err := j.handleLine(ctx, line)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", ErrorStyle.Render("[ERROR]"), err)
		}
		if quit {
			return nil
		}
	}
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineInput provides line editing and a persistent input history.
type lineInput struct {
	line        *liner.State
	historyFile string
}

func newLineInput() *lineInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	in := &lineInput{line: line, historyFile: filepath.Join(configDir, "journal_history")}

	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

// ReadInput reads one line. Non-empty input is added to the history.
func (in *lineInput) ReadInput(prompt string) (string, error) {
	input, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		in.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history with 0600 permissions and restores the terminal.
func (in *lineInput) Close() {
	if err := os.MkdirAll(filepath.Dir(in.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			in.line.WriteHistory(f)
			f.Close()
		}
	}
	in.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

type chatStreamer interface {
	ChatStream(ctx context.Context, model string, messages []ollama.Message, callback ollama.StreamCallback) error
}

type journalSaver interface {
	Commit(conv *model.Conversation) error
	Flush(id string) error
}

type activityRecorder interface {
	RecordActivity()
}

// journal is one line-mode conversation.
type journal struct {
	out       io.Writer
	client    chatStreamer
	saver     journalSaver
	activity  activityRecorder
	conv      *model.Conversation
	model     string
	showStats bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// handleLine processes one input line and reports whether to exit.
func (j *journal) handleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if j.activity != nil {
		j.activity.RecordActivity()
	}

	if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
		return true, nil
	}
	if strings.HasPrefix(line, "/") {
		return j.handleCommand(line)
	}
	return false, j.send(ctx, line)
}

func (j *journal) handleCommand(line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		return true, nil
	case "/help", "/h":
		j.printHelp()
	case "/history":
		n := defaultHistoryLines
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return false, NewValidationError("count", fields[1], "must be a positive number")
			}
			n = v
		}
		j.printHistory(n)
	case "/id":
		fmt.Fprintln(j.out, j.conv.ID)
	case "/title":
		title := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		if title == "" {
			fmt.Fprintln(j.out, j.conv.Title)
			break
		}
		j.conv.SetTitle(title)
		j.commit()
		fmt.Fprintln(j.out, RenderStatus("ok")+" title set")
	case "/save":
		if err := j.saver.Flush(j.conv.ID); err != nil {
			return false, err
		}
		fmt.Fprintln(j.out, RenderStatus("ok")+" saved")
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}

// send appends the user's message and streams the reply to out.
func (j *journal) send(parent context.Context, text string) error {
	j.conv.AddUserMessage(text)
	j.conv.AddAssistantMessage()
	j.commit()

	ctx, cancel := context.WithCancel(parent)
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.cancel = nil
		j.mu.Unlock()
		cancel()
	}()

	stats := model.NewStatistics()
	tokens := 0
	fmt.Fprint(j.out, AssistantRoleStyle.Render("assistant")+" ")

	err := j.client.ChatStream(ctx, j.model, j.conv.ToOllamaMessages(), func(chunk ollama.StreamChunk) {
		if chunk.Content != "" {
			stats.RecordFirstToken()
			tokens++
			j.conv.AppendToLast(chunk.Content)
			fmt.Fprint(j.out, chunk.Content)
			j.commit()
		}
		if chunk.Done {
			stats.PromptTokens = chunk.PromptTokens
			if chunk.CompletionTokens > 0 {
				tokens = chunk.CompletionTokens
			}
		}
	})
	fmt.Fprintln(j.out)

	reply := j.conv.GetLastMessage()
	switch {
	case err != nil && ctx.Err() != nil:
		if reply.GetDisplayContent() == "" {
			j.conv.AppendToLast("_(stopped)_")
		}
		err = nil
	case err != nil:
		j.conv.AppendToLast(fmt.Sprintf("\n\n_(error: %v)_", err))
	}

	stats.Finalize(tokens)
	j.conv.FinalizeLast(stats)
	j.commit()

	if err == nil && j.showStats {
		fmt.Fprintln(j.out, DimStyle.Render(stats.Format()))
	}
	return err
}

// stop cancels the reply in flight, if any.
func (j *journal) stop() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel == nil {
		return false
	}
	j.cancel()
	j.cancel = nil
	return true
}

func (j *journal) commit() {
	if err := j.saver.Commit(j.conv); err != nil {
		fmt.Fprintf(j.out, "\n%s autosave: %v\n", WarningStyle.Render("[WARN]"), err)
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

func (j *journal) printHistory(n int) {
	msgs := j.conv.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	width := GetTerminalWidth()
	for _, msg := range msgs {
		label := UserRoleStyle.Render(string(msg.Role))
		if msg.Role == model.RoleAssistant {
			label = AssistantRoleStyle.Render(string(msg.Role))
		}
		text := strings.ReplaceAll(msg.GetDisplayContent(), "\n", " ")
		fmt.Fprintf(j.out, "%s %s\n", label, util.TruncateWidth(text, max(width-len(msg.Role)-1, 10)))
	}
}

func (j *journal) printHelp() {
	fmt.Fprintln(j.out, TitleStyle.Render("Commands"))
	for _, c := range [][2]string{
		{"/help, /h", "Show this help"},
		{"/history [n]", "Show the last n messages"},
		{"/id", "Show the conversation ID"},
		{"/title [text]", "Show or set the title"},
		{"/save", "Write the conversation now"},
		{"/quit, /q", "Exit"},
	} {
		fmt.Fprintf(j.out, "  %s %s\n", RenderLabel(c[0], 16), c[1])
	}
}
