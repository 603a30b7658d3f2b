// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs chat turns: it sends a session's history to the active
// transport, filters the streamed reply, shows it through a Sink as it
// arrives, then tags its code blocks and saves the session.
//
// A turn moves through three states:
//
//	idle -> streaming -> finalizing -> idle
//
// Finalizing always runs, so text received before an error or a
// cancellation is kept in the history.
package chat
