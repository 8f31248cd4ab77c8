// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// root.go - Command tree for the openbook CLI.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/PointerLife/openbook/internal/config"
)

// Version information, synced from main at startup.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// app holds the flag values and lazily loaded config of one command tree.
type app struct {
	configPath string
	logPath    string
	logLevel   string
	model      string
	jsonOut    bool
	noColor    bool

	cfg *config.Config
}

// NewRootCmd builds the openbook command tree. Running it without a
// subcommand starts the chat view.
func NewRootCmd() *cobra.Command {
	a := &app{}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "openbook",
		Short: "A terminal chat client for local models",
		Long: `openbook is a terminal chat client for Ollama.

Conversations of any length scroll smoothly: only the messages on screen
are rendered, and every message is autosaved in the background.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          a.runChat,
	}
	root.PersistentPreRun = func(*cobra.Command, []string) {
		if a.noColor {
			ForceColorsEnabled(false)
		}
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ~/.openbook/config.toml)")
	pf.StringVar(&a.logPath, "log", "", "write logs to this file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVarP(&a.model, "model", "m", "", "model to chat with (overrides config)")
	pf.BoolVar(&a.jsonOut, "json", false, "print machine-readable JSON")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.Flags().String("resume", "", "resume the conversation with this ID")

	root.AddCommand(
		a.chatCmd(),
		a.journalCmd(),
		a.listCmd(),
		a.searchCmd(),
		a.showCmd(),
		a.exportCmd(),
		a.deleteCmd(),
		a.configCmd(),
		a.versionCmd(),
	)
	return root
}

// Execute runs the command tree against os.Args, reports any error on
// stderr and returns it for the exit code.
func Execute() error {
	a := &app{}
	root := a.rootCmd()
	err := root.Execute()
	if err != nil {
		DisplayError(os.Stderr, err, a.jsonOut)
	}
	return err
}

// =============================================================================
// CONFIG
// =============================================================================

// config loads the configuration once and applies flag overrides.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if a.logPath != "" {
		cfg.Logging.Path = a.logPath
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.model != "" {
		cfg.Local.OllamaModel = a.model
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	a.cfg = cfg
	return cfg, nil
}

// path is the config file commands read and write.
func (a *app) path() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return config.ConfigPath()
}

// configFileExists reports whether the config file is present on disk.
func (a *app) configFileExists() bool {
	p, err := a.path()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return !errors.Is(err, os.ErrNotExist)
}

// =============================================================================
// VERSION
// =============================================================================

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return OutputJSON(cmd.OutOrStdout(), a.jsonOut, "version", func() (any, error) {
				if !a.jsonOut {
					printVersion(cmd.OutOrStdout())
				}
				return map[string]string{
					"version":    Version,
					"git_commit": GitCommit,
					"build_date": BuildDate,
				}, nil
			})
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "openbook %s\n", Version)
	fmt.Fprintf(w, "%s %s\n", RenderLabel("commit", 8), GitCommit)
	fmt.Fprintf(w, "%s %s\n", RenderLabel("built", 8), BuildDate)
}
