// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"context"
	"io"
)

// =============================================================================
// TRANSPORT
// =============================================================================

// ChatRequest is everything a transport needs to start one completion.
type ChatRequest struct {
	// Messages is the full conversation, oldest first, system prompt
	// included when configured.
	Messages []Message

	// Params carries model name and sampling settings.
	Params Params
}

// Stream delivers the fragments of one completion.
//
// Recv blocks until the next non-empty fragment is available. It returns
// io.EOF after the last fragment, or a *TransportError when the connection
// fails, times out or the provider reports an error. Fragments already
// returned stay valid after an error.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Transport starts completions against one provider. Implementations are
// safe for concurrent use.
type Transport interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// StartStream sends req and returns once the response headers arrived.
	// With Params.Stream false the completion is fetched whole and the
	// returned Stream yields it as a single fragment.
	StartStream(ctx context.Context, req ChatRequest) (Stream, error)
}

// BuildRequest assembles the messages for a turn: the system prompt, when
// set, followed by history.
func BuildRequest(params Params, history []Message) ChatRequest {
	messages := make([]Message, 0, len(history)+1)
	if params.SystemPrompt != "" {
		messages = append(messages, NewSystemMessage(params.SystemPrompt))
	}
	messages = append(messages, history...)
	return ChatRequest{Messages: messages, Params: params}
}

// =============================================================================
// SINGLE-FRAGMENT STREAM
// =============================================================================

// textStream yields one fragment then io.EOF.
type textStream struct {
	text string
	done bool
}

// NewTextStream wraps a complete response as a Stream.
func NewTextStream(text string) Stream {
	return &textStream{text: text}
}

func (s *textStream) Recv() (string, error) {
	if s.done || s.text == "" {
		s.done = true
		return "", io.EOF
	}
	s.done = true
	return s.text, nil
}

func (s *textStream) Close() error {
	s.done = true
	return nil
}
