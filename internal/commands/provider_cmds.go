// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"strings"

	"github.com/jeranaias/retrochat/internal/util"
)

func handleProvider(env *Env, args []string) error {
	action, rest := strings.ToLower(args[0]), args[1:]
	cfg := env.Config

	switch action {
	case "list":
		providerList(env)
		return nil

	case "select":
		if err := cfg.SelectProvider(rest[0]); err != nil {
			return err
		}
		if err := env.reopenTransport(); err != nil {
			return err
		}
		if err := env.saveConfig(); err != nil {
			return err
		}
		env.success("Using provider %s", rest[0])
		return nil

	case "add":
		url := ""
		if len(rest) > 2 {
			url = rest[2]
		}
		if err := cfg.AddProvider(rest[0], rest[1], url); err != nil {
			return err
		}
		if err := env.saveConfig(); err != nil {
			return err
		}
		env.success("Added provider %s (%s)", rest[0], cfg.Providers[rest[0]].BaseURL)
		return nil

	case "edit":
		if err := cfg.EditProvider(rest[0], strings.ToLower(rest[1]), strings.Join(rest[2:], " ")); err != nil {
			return err
		}
		return providerChanged(env, rest[0], "Updated provider %s", rest[0])

	case "delete":
		wasActive := rest[0] == cfg.ActiveProvider
		if err := cfg.DeleteProvider(rest[0]); err != nil {
			return err
		}
		if wasActive && cfg.ActiveProvider != "" {
			if err := env.reopenTransport(); err != nil {
				return err
			}
		} else if wasActive {
			env.Chat.SetTransport(nil)
		}
		if err := env.saveConfig(); err != nil {
			return err
		}
		env.success("Deleted provider %s", rest[0])
		if wasActive && cfg.ActiveProvider != "" {
			env.info("Now using %s", cfg.ActiveProvider)
		}
		return nil

	case "set-header":
		value := strings.Join(rest[2:], " ")
		if err := cfg.SetProviderHeader(rest[0], rest[1], value); err != nil {
			return err
		}
		if value == "" {
			return providerChanged(env, rest[0], "Removed header %s from %s", rest[1], rest[0])
		}
		return providerChanged(env, rest[0], "Set header %s on %s", rest[1], rest[0])
	}
	return usage("/provider list|select|add|edit|delete|set-header")
}

// providerChanged saves the config and, when name is the active provider,
// rebuilds the transport so the change applies to the next turn.
func providerChanged(env *Env, name, format string, args ...any) error {
	if name == env.Config.ActiveProvider {
		if err := env.reopenTransport(); err != nil {
			return err
		}
	}
	if err := env.saveConfig(); err != nil {
		return err
	}
	env.success(format, args...)
	return nil
}

func providerList(env *Env) {
	cfg := env.Config
	names := cfg.ProviderNames()
	if len(names) == 0 {
		env.info("No providers configured.")
		return
	}

	theme := env.Render.Theme()
	env.println(theme.TableHeader.Render(fmt.Sprintf("  %s  %s  %s",
		util.PadWidth("NAME", 16), util.PadWidth("KIND", 10), "BASE URL")))
	for _, name := range names {
		p := cfg.Providers[name]
		marker := "  "
		if name == cfg.ActiveProvider {
			marker = "* "
		}
		line := fmt.Sprintf("%s%s  %s  %s", marker,
			util.PadWidth(util.TruncateWidth(name, 16), 16),
			util.PadWidth(p.Kind, 10),
			p.BaseURL)
		if p.APIKey != "" {
			line += theme.Muted.Render("  (key set)")
		}
		if name == cfg.ActiveProvider {
			line = theme.TableCurrent.Render(line)
		}
		env.println(line)
	}
}
