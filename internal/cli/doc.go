// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli wires the retrochat command tree.
//
// The root command starts the interactive chat. Subcommands cover one-shot
// questions and housekeeping:
//
//	retrochat                       # chat, resuming the last session
//	retrochat ask "question"        # one turn, reply on stdout
//	retrochat sessions list|show|delete|rename|export|search|reindex
//	retrochat config show|path|init|get|set|keys
//	retrochat version
//
// # Exit Codes
//
// Execute maps errors to stable exit codes (see ExitCode): usage errors,
// configuration errors, missing sessions, network and timeout failures each
// get their own code, and an interrupted turn exits with 130.
//
// # Output
//
// When stdout is a terminal replies stream live with a spinner and are
// redrawn as markdown once complete. Otherwise the final text, including
// the [CodeID: N] tags, is written once. ask and sessions accept --json.
package cli
