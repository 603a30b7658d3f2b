// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chat sessions to Markdown, JSON or YAML.
//
// Export a session to a generated file name:
//
//	exp, err := export.New("markdown", nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(sess, exp, "", nil)
package export
