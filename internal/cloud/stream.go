// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

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
// SSE READER
// =============================================================================

// doneMarker is the data payload that ends an OpenAI-style stream.
const doneMarker = "[DONE]"

// SSEEvent is one server-sent event.
type SSEEvent struct {
	Event string
	Data  string
	ID    string
}

// SSEReader reads server-sent events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next event. Multiple data lines are joined with "\n";
// comment lines are ignored. At end of input a partially accumulated event
// is returned together with io.EOF.
func (r *SSEReader) ReadEvent() (*SSEEvent, error) {
	event := &SSEEvent{}
	var data [][]byte
	seen := false

	for {
		line, err := r.reader.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")

		if len(line) > 0 {
			field, value, _ := bytes.Cut(line, []byte(":"))
			value = bytes.TrimPrefix(value, []byte(" "))
			switch string(field) {
			case "":
				// comment
			case "event":
				event.Event = string(value)
				seen = true
			case "data":
				data = append(data, value)
				seen = true
			case "id":
				event.ID = string(value)
				seen = true
			}
		} else if err == nil && seen {
			event.Data = string(bytes.Join(data, []byte("\n")))
			return event, nil
		}

		if err != nil {
			if seen {
				event.Data = string(bytes.Join(data, []byte("\n")))
				return event, err
			}
			return nil, err
		}
	}
}

// =============================================================================
// STREAM
// =============================================================================

// sseStream adapts an SSE body to model.Stream.
type sseStream struct {
	ctx      context.Context
	provider string
	body     io.ReadCloser
	events   *SSEReader
	watchdog *netutil.Watchdog
	logger   *log.Logger

	done  bool
	err   error
	count int
}

func newSSEStream(ctx context.Context, provider string, body io.ReadCloser, w *netutil.Watchdog, logger *log.Logger) *sseStream {
	return &sseStream{
		ctx:      ctx,
		provider: provider,
		body:     body,
		events:   NewSSEReader(body),
		watchdog: w,
		logger:   logger,
	}
}

// Recv returns the next non-empty delta, io.EOF after [DONE] or a finish
// reason, or a *model.TransportError.
func (s *sseStream) Recv() (string, error) {
	for {
		if s.err != nil {
			return "", s.err
		}
		if s.done {
			return "", io.EOF
		}

		ev, err := s.events.ReadEvent()
		s.watchdog.Kick()

		if ev != nil {
			if content := s.parseEvent(ev); content != "" {
				if err != nil {
					s.fail(err)
				}
				return content, nil
			}
		}

		if err != nil {
			s.fail(err)
		}
	}
}

// parseEvent decodes one data event. Malformed payloads are skipped.
func (s *sseStream) parseEvent(ev *SSEEvent) string {
	data := bytes.TrimSpace([]byte(ev.Data))
	if len(data) == 0 {
		return ""
	}
	s.count++

	if string(data) == doneMarker {
		s.done = true
		return ""
	}

	var chunk StreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		s.logger.Debug("skipping malformed stream event", "provider", s.provider, "event", s.count)
		return ""
	}

	if chunk.Error != nil && chunk.Error.Message != "" {
		s.err = &model.TransportError{Provider: s.provider, Type: model.ErrTypeProvider, Message: chunk.Error.Message}
		return ""
	}
	if chunk.IsDone() {
		s.done = true
	}
	return chunk.GetContent()
}

// fail records a read error. A clean EOF ends the stream normally, since
// some servers close the body without sending [DONE].
func (s *sseStream) fail(err error) {
	if s.err != nil || s.done {
		return
	}
	if errors.Is(err, io.EOF) && s.ctx.Err() == nil {
		s.done = true
		return
	}
	s.err = classify(s.ctx, s.watchdog, s.provider, "stream interrupted", err)
}

// Close releases the connection.
func (s *sseStream) Close() error {
	s.watchdog.Stop()
	return s.body.Close()
}
