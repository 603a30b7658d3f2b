// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/netutil"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader reads Ollama's NDJSON stream one line at a time and yields the
// message content of each line. It implements model.Stream.
type StreamReader struct {
	ctx      context.Context
	body     io.ReadCloser
	reader   *bufio.Reader
	watchdog *netutil.Watchdog
	logger   *log.Logger

	done       bool
	err        error
	lines      int
	EvalCount  int
	DoneReason string
}

func newStreamReader(ctx context.Context, body io.ReadCloser, w *netutil.Watchdog, logger *log.Logger) *StreamReader {
	return &StreamReader{
		ctx:      ctx,
		body:     body,
		reader:   bufio.NewReader(body),
		watchdog: w,
		logger:   logger,
	}
}

// Recv returns the next non-empty content fragment, io.EOF once Ollama sent
// its done line or closed the body, or a *model.TransportError.
func (s *StreamReader) Recv() (string, error) {
	for {
		if s.err != nil {
			return "", s.err
		}
		if s.done {
			return "", io.EOF
		}

		line, err := s.reader.ReadBytes('\n')
		s.watchdog.Kick()

		if content, ok := s.parseLine(line); ok && content != "" {
			// Hand out content before surfacing a read error that
			// arrived together with it.
			if err != nil {
				s.fail(err)
			}
			return content, nil
		}

		if err != nil {
			s.fail(err)
		}
	}
}

// parseLine decodes one NDJSON line. Malformed lines are skipped.
func (s *StreamReader) parseLine(line []byte) (string, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return "", false
	}
	s.lines++

	var chunk ChatResponse
	if err := json.Unmarshal(line, &chunk); err != nil {
		s.logger.Debug("skipping malformed stream line", "provider", ProviderName, "line", s.lines)
		return "", false
	}

	if chunk.Error != "" {
		s.err = &model.TransportError{Provider: ProviderName, Type: model.ErrTypeProvider, Message: chunk.Error}
		return "", false
	}
	if chunk.Done {
		s.done = true
		s.EvalCount = chunk.EvalCount
		s.DoneReason = chunk.DoneReason
	}
	return chunk.Message.Content, true
}

// fail records a read error. A clean EOF ends the stream normally.
func (s *StreamReader) fail(err error) {
	if s.err != nil || s.done {
		return
	}
	// A body cut short by cancellation can surface as a plain EOF.
	if errors.Is(err, io.EOF) && s.ctx.Err() == nil {
		s.done = true
		return
	}
	s.err = classify(s.ctx, s.watchdog, "stream interrupted", err)
}

// Close releases the connection.
func (s *StreamReader) Close() error {
	s.watchdog.Stop()
	return s.body.Close()
}
