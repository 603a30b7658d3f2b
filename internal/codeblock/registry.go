// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package codeblock

import (
	"github.com/charmbracelet/log"

	"github.com/jeranaias/retrochat/internal/logging"
)

// =============================================================================
// TABLE
// =============================================================================

// Table is the per-session storage the registry assigns IDs against.
// storage.Session implements it.
type Table interface {
	CodeBlock(id int) (string, bool)
	PutCodeBlock(id int, content string)
	NextCodeBlockID() int
	SetNextCodeBlockID(id int)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry assigns session-durable IDs to code blocks. It holds no state of
// its own; callers serialize access to the underlying Table.
type Registry struct {
	table  Table
	logger *log.Logger
}

// NewRegistry returns a registry over t. A nil logger discards warnings.
func NewRegistry(t Table, logger *log.Logger) *Registry {
	return &Registry{table: t, logger: logging.OrDiscard(logger)}
}

// Annotated is the result of tagging every code block in a message.
type Annotated struct {
	// Text is the message with each opening fence carrying its [CodeID: N].
	Text string

	// IDs lists the resolved ID of each block in source order.
	IDs []int
}

// Resolve returns the ID for a single span, registering it when new.
func (r *Registry) Resolve(span Span) (int, error) {
	ids, err := r.resolveAll([]Span{span})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// Annotate extracts the code blocks in text, resolves them left to right
// and rewrites their fences with the resolved IDs. Either every block is
// registered or, on error, none is and text is returned unchanged.
func (r *Registry) Annotate(text string) (Annotated, error) {
	spans := ExtractAll(text)
	if len(spans) == 0 {
		return Annotated{Text: text}, nil
	}

	ids, err := r.resolveAll(spans)
	if err != nil {
		return Annotated{Text: text}, err
	}
	return Annotated{Text: Rewrite(text, spans, ids), IDs: ids}, nil
}

// Lookup returns the content registered under id.
func (r *Registry) Lookup(id int) (string, error) {
	content, ok := r.table.CodeBlock(id)
	if !ok {
		return "", &NotFoundError{ID: id}
	}
	return content, nil
}

// resolveAll plans every assignment before touching the table so a
// collision leaves it unmodified.
func (r *Registry) resolveAll(spans []Span) ([]int, error) {
	next := r.table.NextCodeBlockID()
	pending := make(map[int]string)
	ids := make([]int, len(spans))

	known := func(id int) (string, bool) {
		if c, ok := pending[id]; ok {
			return c, true
		}
		return r.table.CodeBlock(id)
	}

	for i, span := range spans {
		if span.HasID {
			id := span.EmbeddedID
			if stored, ok := known(id); ok {
				if stored != span.Content {
					r.logger.Warn("code block content differs from registered copy", "id", id)
				}
				ids[i] = id
				continue
			}

			// Tag from another session or a cleared history: adopt it.
			pending[id] = span.Content
			if id >= next {
				next = id + 1
			}
			ids[i] = id
			r.logger.Debug("adopted embedded code block id", "id", id)
			continue
		}

		if _, taken := known(next); taken {
			return nil, &CollisionError{ID: next}
		}
		pending[next] = span.Content
		ids[i] = next
		next++
	}

	for id, content := range pending {
		r.table.PutCodeBlock(id, content)
	}
	if next > r.table.NextCodeBlockID() {
		r.table.SetNextCodeBlockID(next)
	}
	return ids, nil
}
