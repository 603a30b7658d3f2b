// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/muesli/termenv"

	"github.com/jeranaias/retrochat/internal/chat"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/stream"
	"github.com/jeranaias/retrochat/internal/util"
)

// =============================================================================
// GENERAL
// =============================================================================

func (r *Registry) handleHelp(env *Env, args []string) error {
	if len(args) > 0 {
		name := args[0]
		if !strings.HasPrefix(name, "/") {
			name = "/" + name
		}
		cmd := r.Get(name)
		if cmd == nil {
			return fmt.Errorf("unknown command: %s", name)
		}
		env.println(env.Render.Theme().Bold.Render(cmd.Usage))
		env.println("  " + cmd.Description)
		if len(cmd.Aliases) > 0 {
			env.println("  Aliases: " + strings.Join(cmd.Aliases, ", "))
		}
		return nil
	}

	groups := r.ByCategory()
	var b strings.Builder
	for _, category := range categoryOrder {
		cmds := groups[category]
		if len(cmds) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(env.Render.Theme().TableHeader.Render(category))
		for _, cmd := range cmds {
			fmt.Fprintf(&b, "\n  %s  %s",
				util.PadWidth(cmd.Usage, 44),
				env.Render.Theme().Muted.Render(cmd.Description))
		}
	}
	env.println(b.String())
	return nil
}

func handleInfo(env *Env, _ []string) error {
	params := env.Chat.Params()

	transport := "none"
	if t := env.Chat.Transport(); t != nil {
		transport = t.Name()
	}

	session := "none"
	if sess, err := env.Chat.Snapshot(""); err == nil {
		session = fmt.Sprintf("%s (%s, %d messages)", sess.Name(), sess.ID, sess.Len())
	}

	rows := [][2]string{
		{"Version", env.Version},
		{"Provider", env.Config.ActiveProvider},
		{"Transport", transport},
		{"Model", params.Model},
		{"Streaming", strconv.FormatBool(params.Stream)},
		{"Think", env.Chat.ThinkMode().String()},
		{"Session", session},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		env.println(fmt.Sprintf("%s %s", env.Render.Theme().Bold.Render(util.PadWidth(row[0]+":", 11)), row[1]))
	}
	return nil
}

func handleClear(env *Env, _ []string) error {
	termenv.NewOutput(env.Out).ClearScreen()
	return nil
}

func handleQuit(_ *Env, _ []string) error {
	return ErrExit
}

// =============================================================================
// MODEL PARAMETERS
// =============================================================================

// updateParams applies fn to a copy of the current parameters and commits
// it to the chat service and configuration.
func updateParams(env *Env, fn func(p *model.Params) error) error {
	p := env.Chat.Params()
	if err := fn(&p); err != nil {
		return err
	}
	if err := env.Chat.SetParams(p); err != nil {
		return err
	}
	env.Config.Params = p
	return env.saveConfig()
}

func handleSet(env *Env, args []string) error {
	name, value := args[0], strings.Join(args[1:], " ")
	if err := updateParams(env, func(p *model.Params) error {
		return p.Set(name, value)
	}); err != nil {
		return err
	}
	env.success("%s set to %s", strings.ToLower(name), value)
	return nil
}

func handleParams(env *Env, _ []string) error {
	p := env.Chat.Params()
	for _, name := range model.ParamNames() {
		value, _ := p.Get(name)
		if name == "system_prompt" {
			value = strconv.Quote(util.TruncateRunes(value, 60))
		}
		env.println(fmt.Sprintf("  %s %s", util.PadWidth(name, 18), value))
	}
	return nil
}

func handleSystem(env *Env, args []string) error {
	prompt := strings.Join(args, " ")
	if len(args) == 1 && strings.EqualFold(args[0], "clear") {
		prompt = model.DefaultSystemPrompt
	}
	if err := updateParams(env, func(p *model.Params) error {
		return p.Set("system_prompt", prompt)
	}); err != nil {
		return err
	}
	if prompt == model.DefaultSystemPrompt {
		env.success("System prompt reset to default")
	} else {
		env.success("System prompt updated")
	}
	return nil
}

func handleStream(env *Env, args []string) error {
	if err := updateParams(env, func(p *model.Params) error {
		return p.Set("stream", args[0])
	}); err != nil {
		return err
	}
	if env.Chat.Params().Stream {
		env.success("Streaming enabled")
	} else {
		env.success("Streaming disabled")
	}
	return nil
}

func handleThink(env *Env, args []string) error {
	mode, err := stream.ParseMode(args[0])
	if err != nil {
		return err
	}
	env.Chat.SetThinkMode(mode)
	env.Config.Display.Think = mode.String()
	if err := env.saveConfig(); err != nil {
		return err
	}
	if mode == stream.ModeShow {
		env.success("Thinking will be shown")
	} else {
		env.success("Thinking will be hidden")
	}
	return nil
}

// =============================================================================
// CONVERSATION
// =============================================================================

func handleHistory(env *Env, args []string) error {
	n := 0
	if len(args) > 0 {
		n, _ = strconv.Atoi(args[0])
	}
	history, err := env.Chat.History("", n)
	if err != nil && !errors.Is(err, chat.ErrNoSession) {
		return err
	}
	if len(history) == 0 {
		env.info("No messages yet.")
		return nil
	}
	for i, msg := range history {
		if i > 0 {
			env.println("")
		}
		env.println(env.Render.Message(msg))
	}
	return nil
}

func handleCopy(env *Env, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid code block ID: %s", args[0])
	}
	content, err := env.Chat.ResolveCodeBlock("", id)
	if err != nil {
		return err
	}
	if env.Clipboard == nil {
		return fmt.Errorf("clipboard not available")
	}
	if err := env.Clipboard.WriteAll(content); err != nil {
		return fmt.Errorf("failed to copy code block %d: %w", id, err)
	}
	env.success("Code block %d copied to clipboard", id)
	return nil
}
