// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/retrochat/internal/chat"
	"github.com/jeranaias/retrochat/internal/commands"
	"github.com/jeranaias/retrochat/internal/config"
	"github.com/jeranaias/retrochat/internal/export"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/storage"
	"github.com/jeranaias/retrochat/internal/stream"
	"github.com/jeranaias/retrochat/internal/ui/picker"
)

// userPrompt is shown before each line of input.
const userPrompt = "You: "

func (a *App) chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session (default)",
		Long: `Start an interactive chat. The last session is resumed unless --session
names another one.

Lines starting with / are commands; /help lists them. Ctrl+C cancels a
reply in progress (the partial reply is kept), Ctrl+D or /quit exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context())
		},
	}
}

// =============================================================================
// REPL
// =============================================================================

// runChat runs the interactive loop until the user quits or input ends.
func (a *App) runChat(ctx context.Context) error {
	svc, err := a.openService(true)
	if err != nil {
		return err
	}
	if err := a.openSession(svc); err != nil {
		return err
	}
	r, err := a.newRenderer()
	if err != nil {
		return err
	}

	reg := commands.NewRegistry()
	env := &commands.Env{
		Ctx:        ctx,
		Chat:       svc,
		Config:     a.cfg,
		ConfigPath: a.cfgPath,
		Out:        a.Out,
		Render:     r,
		Clipboard:  a.clipboard(),
		Pick:       a.pick,
		Open:       a.openFunc(),
		Export:     &export.Options{OutputDir: ".", IncludeMetadata: true},
		Logger:     a.logger,
		Version:    a.Version,
	}

	var input lineReader
	if isTerminal(a.In) && isTerminal(a.Out) {
		completer := commands.NewCompleter(reg)
		completer.ProvidersFn = func() []string { return env.Config.ProviderNames() }
		completer.SessionsFn = func() []string { return sessionIDs(svc) }
		input = NewChatCLI(filepath.Dir(a.cfgPath), completer.Line)
	} else {
		input = newScanReader(a.In, a.Out)
	}
	defer input.Close()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	reloads := a.watchConfig(watchCtx)

	if !a.quiet {
		a.printWelcome(env)
	}

	for {
		line, err := input.Prompt(userPrompt)
		if errors.Is(err, io.EOF) || errors.Is(err, errAborted) {
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case cfg := <-reloads:
			a.applyReload(env, cfg)
		default:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if commands.IsCommand(line) {
			err := reg.Execute(env, line)
			if errors.Is(err, commands.ErrExit) {
				return nil
			}
			if err != nil {
				a.printError(env, err)
			}
			continue
		}

		if err := a.runTurn(ctx, env, line); err != nil {
			a.printError(env, err)
		}
	}
}

// runTurn sends one message. Ctrl+C during the turn cancels it.
func (a *App) runTurn(ctx context.Context, env *commands.Env, text string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	width, height := terminalSize(a.Out)
	sink := newTerminalSink(a.Out, a.Err, env.Render, sinkOptions{
		Live:    isTerminal(a.Out),
		Redraw:  true,
		Spinner: env.Config.Display.Spinner,
		Width:   width,
		Height:  height,
	})

	res, err := env.Chat.SubmitUserTurn(turnCtx, "", text, sink)
	return turnError(res, err)
}

func (a *App) printError(env *commands.Env, err error) {
	fmt.Fprintln(a.Out, env.Render.Error(err))
	if hint := Hint(err); hint != "" {
		fmt.Fprintln(a.Out, env.Render.Theme().Muted.Render(hint))
	}
}

func (a *App) printWelcome(env *commands.Env) {
	r := env.Render
	params := env.Chat.Params()
	fmt.Fprintln(a.Out, r.Theme().Bold.Render("retrochat "+a.Version))
	fmt.Fprintln(a.Out, r.Info("Provider %s, model %s", env.Config.ActiveProvider, params.Model))
	if sess, err := env.Chat.Current(); err == nil {
		fmt.Fprintln(a.Out, r.Info("Session %q (%d messages)", sess.Name(), sess.Len()))
	}
	fmt.Fprintln(a.Out, r.Theme().Muted.Render("Type /help for commands, /quit to exit."))
	fmt.Fprintln(a.Out)
}

// pick runs the interactive session picker.
func (a *App) pick(ctx context.Context, infos []storage.Info, current string) (string, error) {
	if err := requiresTTY(a.In, "pick a session"); err != nil {
		return "", err
	}
	r, err := a.newRenderer()
	if err != nil {
		return "", err
	}
	id, err := picker.Run(ctx, infos, current, r.Theme(), a.In, a.Out)
	if errors.Is(err, picker.ErrCanceled) {
		return "", nil
	}
	return id, err
}

func (a *App) clipboard() commands.Clipboard {
	if a.Clipboard != nil {
		return a.Clipboard
	}
	return commands.SystemClipboard{}
}

func sessionIDs(svc *chat.Service) []string {
	infos, err := svc.ListSessions()
	if err != nil {
		return nil
	}
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.ID
	}
	return ids
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

// watchConfig reloads the config file when it changes on disk. The newest
// reload waits on the returned channel until the REPL applies it between
// lines.
func (a *App) watchConfig(ctx context.Context) <-chan *config.Config {
	reloads := make(chan *config.Config, 1)
	if _, err := os.Stat(a.cfgPath); err != nil {
		return reloads
	}

	go func() {
		err := config.Watch(ctx, a.cfgPath, config.WatchOptions{Logger: a.logger}, func(cfg *config.Config) {
			select {
			case <-reloads:
			default:
			}
			reloads <- cfg
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Debug("config watch stopped", "err", err)
		}
	}()
	return reloads
}

// applyReload makes a reloaded configuration current. Flag overrides still
// win over the file.
func (a *App) applyReload(env *commands.Env, cfg *config.Config) {
	if err := a.applyOverrides(cfg); err != nil {
		a.logger.Warn("ignoring reloaded config", "err", err)
		return
	}
	if err := env.Chat.SetParams(cfg.Params); err != nil {
		a.logger.Warn("ignoring reloaded config", "err", err)
		return
	}
	if mode, err := stream.ParseMode(cfg.Display.Think); err == nil {
		env.Chat.SetThinkMode(mode)
	}
	env.Chat.SetTrimLeading(cfg.Display.TrimLeading)

	oldName, oldProvider, _ := env.Config.Active()
	newName, newProvider, err := cfg.Active()
	if err == nil && (oldName != newName || !reflect.DeepEqual(oldProvider, newProvider)) {
		var t model.Transport
		if t, err = a.openTransport(cfg); err == nil {
			env.Chat.SetTransport(t)
		} else {
			a.logger.Warn("keeping previous provider", "err", err)
			if oldName != "" && cfg.Providers != nil {
				cfg.ActiveProvider = oldName
				cfg.Providers[oldName] = oldProvider
			}
		}
	}

	*env.Config = *cfg
	a.logger.Info("config reloaded", "path", a.cfgPath)
}
