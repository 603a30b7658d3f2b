// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

// Sentinels for errors.Is checks.
var (
	// ErrSessionNotFound is returned when no file exists for an ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionCorrupt is returned when a session file cannot be decoded.
	// The file is left untouched.
	ErrSessionCorrupt = errors.New("session file corrupt")

	// ErrInvalidID is returned for IDs that cannot name a session file.
	ErrInvalidID = errors.New("invalid session id")
)

// SessionError carries the session ID with one of the sentinels above.
type SessionError struct {
	ID    string
	Kind  error
	Cause error
}

func (e *SessionError) Error() string {
	msg := fmt.Sprintf("session %s: %v", e.ID, e.Kind)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *SessionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
