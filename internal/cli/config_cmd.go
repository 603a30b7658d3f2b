// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/retrochat/internal/config"
)

// skipAnnotations marks commands that run without loading the config.
var skipAnnotations = map[string]string{"setup": "skip"}

func (a *App) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the configuration file",
		Long: `Inspect and edit the configuration file.

Keys use dot notation, for example:
  retrochat config get params.temperature
  retrochat config set display.think show
  retrochat config set params.stop "###,END"`,
	}
	cmd.AddCommand(
		a.configShowCommand(),
		a.configPathCommand(),
		a.configInitCommand(),
		a.configGetCommand(),
		a.configSetCommand(),
		a.configKeysCommand(),
	)
	return cmd
}

func (a *App) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			fmt.Fprintf(a.Out, "# %s\n", a.cfgPath)
			fmt.Fprint(a.Out, a.cfg.String())
			return nil
		},
	}
}

func (a *App) configPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the configuration file path",
		Args:        cobra.NoArgs,
		Annotations: skipAnnotations,
		RunE: func(*cobra.Command, []string) error {
			path, err := a.resolveConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Out, path)
			return nil
		},
	}
}

func (a *App) configInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a configuration file with the defaults",
		Args:        cobra.NoArgs,
		Annotations: skipAnnotations,
		RunE: func(*cobra.Command, []string) error {
			path, err := a.resolveConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return usageErrorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func (a *App) configGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return usageErrorf("%v", err)
			}
			if list, ok := v.([]string); ok {
				v = strings.Join(list, ",")
			}
			fmt.Fprintln(a.Out, v)
			return nil
		},
	}
}

func (a *App) configSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value...>",
		Short: "Change one configuration value and save the file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			// Reload so --provider and friends are not written back.
			cfg, err := config.Load(a.cfgPath, config.WithLogger(a.logger))
			if err != nil {
				return err
			}
			value := strings.Join(args[1:], " ")
			if err := cfg.Set(args[0], value); err != nil {
				return usageErrorf("%s: %v", args[0], err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg, a.cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "%s = %s\n", args[0], value)
			return nil
		},
	}
}

func (a *App) configKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "keys",
		Short:       "List the keys accepted by get and set",
		Args:        cobra.NoArgs,
		Annotations: skipAnnotations,
		RunE: func(*cobra.Command, []string) error {
			for _, key := range config.Keys() {
				fmt.Fprintln(a.Out, key)
			}
			return nil
		},
	}
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: skipAnnotations,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(a.Out, "retrochat %s\n", a.Version)
		},
	}
}
