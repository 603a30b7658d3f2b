// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat sessions.
//
// Each session is one JSON file, session_<id>.json, holding the
// conversation history, the code block table and metadata. The file layout
// is shared with earlier releases:
//
//	{"conversation_history": [{"role": "user", "content": "..."}],
//	 "metadata": {"created_at": "...", "name": "...", "last_modified": "..."},
//	 "code_blocks": {"1": "..."},
//	 "next_code_block_global_id": 2}
//
// # Key Types
//
//   - Session: one conversation; implements codeblock.Table
//   - Store: atomic load/save/list/delete plus the last-session pointer
//   - Index: optional SQLite FTS5 index for searching message text
//
// Files missing next_code_block_global_id get one past the highest stored
// code block ID. Corrupt files are reported by Load and skipped by List;
// they are never rewritten.
package storage
