// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration commands.
//
// Command: config [subcommand]
//
// Subcommands:
//   show (default)      Show the effective configuration
//   get <key>           Show one value
//   set <key> <value>   Change one value and save the file
//   validate [file]     Check a config file
//   keys                List every key
//   path                Print the config file path
//
// Examples:
//   openbook config get transcript.overscan
//   openbook config set ui.theme light
//   openbook config set persistence.backend sqlite

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PointerLife/openbook/internal/config"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change configuration",
		Args:  cobra.NoArgs,
		RunE:  a.runConfigShow,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the effective configuration",
			Args:  cobra.NoArgs,
			RunE:  a.runConfigShow,
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Show one value",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runConfigGet,
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one value and save the file",
			Args:  cobra.ExactArgs(2),
			RunE:  a.runConfigSet,
		},
		&cobra.Command{
			Use:   "validate [file]",
			Short: "Check a config file",
			Args:  cobra.MaximumNArgs(1),
			RunE:  a.runConfigValidate,
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List every key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return OutputJSON(cmd.OutOrStdout(), a.jsonOut, "config keys", func() (any, error) {
					keys := config.AllKeys()
					if !a.jsonOut {
						for _, k := range keys {
							fmt.Fprintln(cmd.OutOrStdout(), k)
						}
					}
					return keys, nil
				})
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.path()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), p)
				return nil
			},
		},
	)
	return cmd
}

func (a *app) runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	return OutputJSON(cmd.OutOrStdout(), a.jsonOut, "config show", func() (any, error) {
		if !a.jsonOut {
			fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
		}
		return cfg, nil
	})
}

func (a *app) runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	return OutputJSON(cmd.OutOrStdout(), a.jsonOut, "config get", func() (any, error) {
		v, err := cfg.Get(args[0])
		if err != nil {
			return nil, NewNotFoundError("config key", args[0])
		}
		if !a.jsonOut {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return map[string]any{"key": args[0], "value": v}, nil
	})
}

func (a *app) runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	path, err := a.path()
	if err != nil {
		return err
	}

	cfg := config.Default()
	if a.configFileExists() {
		if cfg, err = config.LoadFromPath(path); err != nil {
			return err
		}
	} else if err := cfg.SetDefaults(); err != nil {
		return err
	}

	if _, err := cfg.Get(key); err != nil {
		return NewNotFoundError("config key", key)
	}
	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: key, Value: value, Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return NewCommandError("config", "save", path, err)
	}

	a.cfg = nil
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", RenderStatus("ok"), key, value)
	return nil
}

func (a *app) runConfigValidate(cmd *cobra.Command, args []string) error {
	path, err := a.path()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		path = args[0]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return NewCommandError("config", "validate", "cannot read "+path, err)
	}
	if _, err := config.Parse(data); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", RenderStatus("ok"), path)
	return nil
}
