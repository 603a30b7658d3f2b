// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"time"

	"github.com/jeranaias/retrochat/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message is one chat message in Ollama's wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

// Options holds the sampling parameters Ollama understands.
type Options struct {
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	NumPredict       int      `json:"num_predict,omitempty"`
	Stop             []string `json:"stop,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is one NDJSON line of a streamed reply, or the whole body of
// a non-streamed one.
type ChatResponse struct {
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	Message    Message   `json:"message"`
	Done       bool      `json:"done"`
	DoneReason string    `json:"done_reason,omitempty"`
	Error      string    `json:"error,omitempty"`

	EvalCount    int   `json:"eval_count,omitempty"`
	EvalDuration int64 `json:"eval_duration,omitempty"` // nanoseconds
}

// =============================================================================
// CONVERSION
// =============================================================================

// newChatRequest converts a provider-neutral request.
func newChatRequest(req model.ChatRequest, defaultModel string) ChatRequest {
	name := req.Params.Model
	if name == "" {
		name = defaultModel
	}

	messages := make([]Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = Message{Role: string(m.Role), Content: m.Content}
	}

	return ChatRequest{
		Model:    name,
		Messages: messages,
		Stream:   req.Params.Stream,
		Options: &Options{
			Temperature:      req.Params.Temperature,
			TopP:             req.Params.TopP,
			PresencePenalty:  req.Params.PresencePenalty,
			FrequencyPenalty: req.Params.FrequencyPenalty,
			NumPredict:       req.Params.MaxTokens,
			Stop:             req.Params.Stop,
		},
	}
}
