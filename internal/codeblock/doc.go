// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package codeblock finds fenced code blocks in chat messages and gives each
// one a stable numeric ID within its session.
//
// IDs are written back into the message as a tag on the opening fence:
//
//	```python [CodeID: 3]
//	print("hi")
//	```
//
// so that rescanning the stored text yields the same IDs, and /copy 3 keeps
// pointing at the same block after a restart.
//
// # Key Types
//
//   - Span: one detected block with its language, content and offsets
//   - Registry: assigns and resolves IDs against a session's Table
//   - Table: the per-session map and counter the registry mutates
//
// # Usage
//
//	reg := codeblock.NewRegistry(session, logger)
//	out, err := reg.Annotate(reply)
//	if err != nil {
//	    return err
//	}
//	session.AddMessage(model.RoleAssistant, out.Text)
//
// IDs are never reused. A block whose tag is unknown to the session (pasted
// from another session, or left over after the history was cleared) is
// adopted under its existing ID and the counter moves past it.
package codeblock
