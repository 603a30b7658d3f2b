// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system for the REPL.
//
// Input starting with "/" is parsed into a command name (case-insensitive)
// and shell-style arguments, validated against the command's argument
// definitions and dispatched to its handler with an Env.
//
// # Key Types
//
//   - Registry: Command registry with all available commands
//   - Env: Chat service, config and output used by handlers
//   - ParseResult: Parsed command with name and arguments
//   - Completer: Tab completion for commands and arguments
//
// # Usage
//
//	reg := commands.NewRegistry()
//	if commands.IsCommand(line) {
//	    err := reg.Execute(env, line)
//	    if errors.Is(err, commands.ErrExit) {
//	        return nil
//	    }
//	}
package commands
