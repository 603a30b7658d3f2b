// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package picker is an interactive session chooser built on bubbletea.
// Typing filters the list with a fuzzy match on name and ID.
package picker
