// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"

	"github.com/jeranaias/retrochat/internal/chat"
	"github.com/jeranaias/retrochat/internal/config"
	"github.com/jeranaias/retrochat/internal/export"
	"github.com/jeranaias/retrochat/internal/logging"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/provider"
	"github.com/jeranaias/retrochat/internal/storage"
	"github.com/jeranaias/retrochat/internal/ui/render"
)

// =============================================================================
// EXECUTION ENVIRONMENT
// =============================================================================

// Clipboard receives text copied by /copy.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard writes to the operating system clipboard.
type SystemClipboard struct{}

// WriteAll implements Clipboard.
func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("no clipboard utility available")
	}
	return clipboard.WriteAll(text)
}

// PickFunc asks the user to choose a session interactively.
type PickFunc func(ctx context.Context, infos []storage.Info, current string) (string, error)

// OpenFunc builds a transport for a provider entry.
type OpenFunc func(name string, p config.ProviderConfig) (model.Transport, error)

// Env is everything a command handler may touch.
type Env struct {
	Ctx    context.Context
	Chat   *chat.Service
	Config *config.Config

	// ConfigPath is where configuration changes are saved. Empty keeps
	// changes in memory only.
	ConfigPath string

	Out       io.Writer
	Render    *render.Renderer
	Clipboard Clipboard

	// Pick is used by /chat load without an id. Nil disables the picker.
	Pick PickFunc

	// Open defaults to provider.Open.
	Open OpenFunc

	// Export configures /chat export. Nil uses export.DefaultOptions.
	Export *export.Options

	Logger  *log.Logger
	Version string
}

func (env *Env) ctx() context.Context {
	if env.Ctx == nil {
		return context.Background()
	}
	return env.Ctx
}

func (env *Env) logger() *log.Logger {
	return logging.OrDiscard(env.Logger)
}

func (env *Env) println(s string) {
	fmt.Fprintln(env.Out, s)
}

func (env *Env) info(format string, args ...any) {
	env.println(env.Render.Info(format, args...))
}

func (env *Env) success(format string, args ...any) {
	env.println(env.Render.Success(format, args...))
}

// saveConfig persists the configuration when a path is set.
func (env *Env) saveConfig() error {
	if env.ConfigPath == "" {
		return nil
	}
	if err := config.Save(env.Config, env.ConfigPath); err != nil {
		return err
	}
	env.logger().Debug("config saved", "path", env.ConfigPath)
	return nil
}

// reopenTransport points the chat service at the active provider.
func (env *Env) reopenTransport() error {
	name, p, err := env.Config.Active()
	if err != nil {
		return err
	}
	open := env.Open
	if open == nil {
		open = func(name string, p config.ProviderConfig) (model.Transport, error) {
			return provider.Open(name, p, env.Logger)
		}
	}
	t, err := open(name, p)
	if err != nil {
		return err
	}
	env.Chat.SetTransport(t)
	env.logger().Info("provider selected", "provider", name, "kind", p.Kind)
	return nil
}
