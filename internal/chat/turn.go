// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// TURN STATE
// =============================================================================

// State is the orchestrator phase of one session.
type State int32

const (
	// StateIdle accepts a new user message.
	StateIdle State = iota

	// StateStreaming pulls fragments from the transport.
	StateStreaming

	// StateFinalizing annotates and persists the accumulated reply.
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// =============================================================================
// SINK
// =============================================================================

// Sink receives a turn's output as it is produced. Primary and Thought are
// called synchronously from the streaming loop, in arrival order; Final is
// called once after the turn has been finalized, also when it failed.
type Sink interface {
	Primary(text string)
	Thought(text string)
	Final(turn TurnResult)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	PrimaryFunc func(text string)
	ThoughtFunc func(text string)
	FinalFunc   func(turn TurnResult)
}

func (f SinkFuncs) Primary(text string) {
	if f.PrimaryFunc != nil {
		f.PrimaryFunc(text)
	}
}

func (f SinkFuncs) Thought(text string) {
	if f.ThoughtFunc != nil {
		f.ThoughtFunc(text)
	}
}

func (f SinkFuncs) Final(turn TurnResult) {
	if f.FinalFunc != nil {
		f.FinalFunc(turn)
	}
}

// Discard is a Sink that drops everything.
var Discard Sink = SinkFuncs{}

// =============================================================================
// TURN RESULT
// =============================================================================

// TurnResult describes a finished turn.
type TurnResult struct {
	SessionID string

	// Text is the stored assistant message: the filtered reply with
	// [CodeID: N] tags on its code fences.
	Text string

	// Thought holds the thought text seen in show mode.
	Thought string

	// CodeBlockIDs lists the IDs of the reply's code blocks in order.
	CodeBlockIDs []int

	// Partial is set when the reply was cut short by an error or
	// cancellation. Whatever arrived was still stored.
	Partial  bool
	Canceled bool

	Fragments     int
	FirstFragment time.Duration
	Duration      time.Duration

	// Err is the transport error that ended the turn early, if any.
	Err error

	// SaveErr is set when the finalized session could not be written.
	// The in-memory session keeps the turn.
	SaveErr error
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTurnInProgress is returned when a session already runs a turn.
	ErrTurnInProgress = errors.New("a turn is already in progress for this session")

	// ErrNoSession is returned when an operation needs a current session
	// and none is loaded.
	ErrNoSession = errors.New("no active session")

	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoTransport is returned when no provider is configured.
	ErrNoTransport = errors.New("no provider configured")

	// ErrSearchDisabled is returned by SearchSessions without an index.
	ErrSearchDisabled = errors.New("session search is disabled")
)

// SaveError reports a failed write of a finalized session.
type SaveError struct {
	SessionID string
	Err       error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to persist session %s: %v", e.SessionID, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}
