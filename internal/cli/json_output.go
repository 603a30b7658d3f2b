// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jeranaias/retrochat/internal/storage"
)

// JSONResponse is the envelope written by commands run with --json.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data any `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the RFC 3339 time the response was generated
	Timestamp string `json:"timestamp"`

	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response to w with two-space indentation.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// outputJSON runs handler and writes its result or error as a JSONResponse.
// The handler's error is still returned so the exit code reflects it.
func outputJSON(w io.Writer, command string, handler func() (any, error)) error {
	data, err := handler()
	if err != nil {
		_ = NewJSONErrorResponse(command, err).Write(w)
		return err
	}
	return NewJSONResponse(command, data).Write(w)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// SessionData is one row of "sessions list --json".
type SessionData struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
	Messages     int       `json:"messages"`
	Preview      string    `json:"preview,omitempty"`
	Current      bool      `json:"current,omitempty"`
}

func newSessionData(infos []storage.Info, current string) []SessionData {
	out := make([]SessionData, 0, len(infos))
	for _, info := range infos {
		out = append(out, SessionData{
			ID:           info.ID,
			Name:         info.Name,
			CreatedAt:    info.CreatedAt,
			LastModified: info.LastModified,
			Messages:     info.Messages,
			Preview:      info.Preview,
			Current:      info.ID == current,
		})
	}
	return out
}

// AskData is the result of "ask --json".
type AskData struct {
	SessionID    string `json:"session_id"`
	Response     string `json:"response"`
	Thought      string `json:"thought,omitempty"`
	CodeBlockIDs []int  `json:"code_block_ids"`
	Partial      bool   `json:"partial"`
	DurationMS   int64  `json:"duration_ms"`
}
