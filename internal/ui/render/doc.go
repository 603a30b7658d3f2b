// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render formats chat output for the terminal: themed labels,
// markdown replies via glamour, and code blocks framed with their CodeID
// and highlighted by chroma.
package render
