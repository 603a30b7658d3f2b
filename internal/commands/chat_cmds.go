// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jeranaias/retrochat/internal/chat"
	"github.com/jeranaias/retrochat/internal/export"
)

// searchLimit caps /chat search output.
const searchLimit = 20

func handleChat(env *Env, args []string) error {
	action, rest := strings.ToLower(args[0]), args[1:]
	switch action {
	case "new":
		return chatNew(env, strings.Join(rest, " "))
	case "load":
		id := ""
		if len(rest) > 0 {
			id = rest[0]
		}
		return chatLoad(env, id)
	case "list":
		infos, err := env.Chat.ListSessions()
		if err != nil {
			return err
		}
		env.println(env.Render.SessionTable(infos, env.Chat.CurrentID()))
		return nil
	case "delete":
		return chatDelete(env, rest[0])
	case "rename":
		name := strings.Join(rest, " ")
		if err := env.Chat.RenameSession("", name); err != nil {
			return err
		}
		env.success("Session renamed to %q", name)
		return nil
	case "current":
		return chatCurrent(env)
	case "reset":
		if err := env.Chat.ClearHistory(""); err != nil {
			return err
		}
		env.success("Conversation history cleared")
		return nil
	case "export":
		path := ""
		if len(rest) > 1 {
			path = rest[1]
		}
		return chatExport(env, rest[0], path)
	case "search":
		results, err := env.Chat.SearchSessions(env.ctx(), strings.Join(rest, " "), searchLimit)
		if errors.Is(err, chat.ErrSearchDisabled) {
			return errors.New("search is disabled (set storage.search_index = true)")
		}
		if err != nil {
			return err
		}
		env.println(env.Render.SearchResults(results))
		return nil
	}
	return usage("/chat new|load|list|delete|rename|current|reset|export|search")
}

func chatNew(env *Env, name string) error {
	sess, err := env.Chat.NewSession(name)
	if err != nil {
		return err
	}
	env.success("Started new session %q (%s)", sess.Name(), sess.ID)
	return nil
}

func chatLoad(env *Env, id string) error {
	if id == "" {
		if env.Pick == nil {
			return usage("/chat load <id>")
		}
		infos, err := env.Chat.ListSessions()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			env.info("No saved sessions.")
			return nil
		}
		id, err = env.Pick(env.ctx(), infos, env.Chat.CurrentID())
		if err != nil {
			return err
		}
		if id == "" {
			env.info("No session selected.")
			return nil
		}
	}

	sess, err := env.Chat.LoadSession(id)
	if err != nil {
		return err
	}
	env.success("Loaded session %q (%d messages)", sess.Name(), sess.Len())
	return nil
}

func chatDelete(env *Env, id string) error {
	wasCurrent := id == env.Chat.CurrentID()
	if err := env.Chat.DeleteSession(id); err != nil {
		return err
	}
	env.success("Deleted session %s", id)
	if wasCurrent {
		env.info("A new session will start with your next message.")
	}
	return nil
}

func chatCurrent(env *Env) error {
	sess, err := env.Chat.Snapshot("")
	if errors.Is(err, chat.ErrNoSession) {
		env.info("No active session.")
		return nil
	}
	if err != nil {
		return err
	}
	info := sess.Info()
	env.println(env.Render.Theme().Bold.Render(info.Name))
	env.println("  ID:       " + info.ID)
	env.println("  Created:  " + info.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	env.println("  Modified: " + info.LastModified.Local().Format("2006-01-02 15:04:05"))
	env.println("  Messages: " + strconv.Itoa(info.Messages))
	return nil
}

func chatExport(env *Env, format, path string) error {
	opts := env.Export
	if opts == nil {
		opts = export.DefaultOptions()
	}
	exporter, err := export.New(format, opts)
	if err != nil {
		return err
	}
	sess, err := env.Chat.Snapshot("")
	if err != nil {
		return err
	}
	written, err := export.ToFile(sess, exporter, path, opts)
	if err != nil {
		return err
	}
	env.success("Exported %q to %s", sess.Name(), written)
	return nil
}
