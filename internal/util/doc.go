// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the retrochat packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//   - AtomicWriteJSON: indented JSON through AtomicWriteFile
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, PadWidth: column-aware truncation and padding
//
// # Usage
//
//	// Persist a session without ever exposing a half-written file
//	err := util.AtomicWriteJSON(path, session, 0600)
//
//	// Fit a session name into a table column
//	cell := util.PadWidth(name, 32)
package util
