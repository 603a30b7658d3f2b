// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"github.com/jeranaias/retrochat/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage represents a message in the OpenAI chat format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat/completions.
type ChatRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Stream           bool          `json:"stream"`
	Temperature      float64       `json:"temperature"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is a non-streamed completion.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// GetContent returns the first choice's content.
func (r *ChatResponse) GetContent() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

// StreamChunk is the payload of one SSE data event.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// GetContent returns the first choice's delta content.
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// IsDone reports whether the first choice carries a finish reason.
func (c *StreamChunk) IsDone() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != nil && *c.Choices[0].FinishReason != ""
}

// apiError is the error object OpenAI-compatible servers embed in bodies
// and, mid-stream, in data events.
type apiError struct {
	Code    any    `json:"code,omitempty"`
	Message string `json:"message"`
}

// =============================================================================
// CONVERSION
// =============================================================================

func newChatRequest(req model.ChatRequest, defaultModel string) ChatRequest {
	name := req.Params.Model
	if name == "" {
		name = defaultModel
	}

	messages := make([]ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = ChatMessage{Role: string(m.Role), Content: m.Content}
	}

	return ChatRequest{
		Model:            name,
		Messages:         messages,
		Stream:           req.Params.Stream,
		Temperature:      req.Params.Temperature,
		MaxTokens:        req.Params.MaxTokens,
		TopP:             req.Params.TopP,
		PresencePenalty:  req.Params.PresencePenalty,
		FrequencyPenalty: req.Params.FrequencyPenalty,
		Stop:             req.Params.Stop,
	}
}
