// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
	"strings"
)

// =============================================================================
// MARKERS AND MODES
// =============================================================================

const (
	// OpenMarker starts a thought segment.
	OpenMarker = "<think>"

	// CloseMarker ends a thought segment.
	CloseMarker = "</think>"
)

// Mode selects what happens to thought segments.
type Mode int

const (
	// ModeHide drops thought text.
	ModeHide Mode = iota

	// ModeShow routes thought text to the thought channel.
	ModeShow
)

// String returns the mode's config/command name.
func (m Mode) String() string {
	if m == ModeShow {
		return "show"
	}
	return "hide"
}

// ParseMode parses "show" or "hide" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "show":
		return ModeShow, nil
	case "hide":
		return ModeHide, nil
	default:
		return ModeHide, fmt.Errorf("invalid think mode %q (want show or hide)", s)
	}
}

// Kind tells which channel a Segment belongs to.
type Kind int

const (
	// Primary is user-facing response text.
	Primary Kind = iota

	// Thought is text from inside a thought segment.
	Thought
)

// Segment is a run of filtered text bound for one channel.
type Segment struct {
	Kind Kind
	Text string
}

// state of the filter's scanner.
type state int

const (
	stateNormal state = iota
	stateInThought
)

// =============================================================================
// FILTER
// =============================================================================

// Filter splits a fragment stream into primary and thought text. It holds
// back at most len(CloseMarker)-1 bytes between calls so a marker split
// across fragments is still recognized, and it never emits part of a
// marker. A Filter is not safe for concurrent use; fragments must be pushed
// in arrival order.
type Filter struct {
	mode  Mode
	trim  bool
	state state
	held  string

	// started is set once primary output has a visible character.
	started bool
}

// Option configures a Filter.
type Option func(*Filter)

// WithTrimLeading drops whitespace before the first visible character of
// primary output.
func WithTrimLeading(trim bool) Option {
	return func(f *Filter) { f.trim = trim }
}

// NewFilter returns a filter in the normal state.
func NewFilter(mode Mode, opts ...Option) *Filter {
	f := &Filter{mode: mode}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// InThought reports whether the filter is inside an unterminated segment.
func (f *Filter) InThought() bool {
	return f.state == stateInThought
}

// Push consumes one fragment and returns the segments it completes, in
// order. Adjacent output for the same channel is merged.
func (f *Filter) Push(fragment string) []Segment {
	f.held += fragment

	var out []Segment
	for {
		marker := OpenMarker
		if f.state == stateInThought {
			marker = CloseMarker
		}

		if idx := strings.Index(f.held, marker); idx >= 0 {
			out = f.emit(out, f.held[:idx])
			f.held = f.held[idx+len(marker):]
			if f.state == stateNormal {
				f.state = stateInThought
			} else {
				f.state = stateNormal
			}
			continue
		}

		keep := partialSuffix(f.held, marker)
		out = f.emit(out, f.held[:len(f.held)-keep])
		f.held = f.held[len(f.held)-keep:]
		return out
	}
}

// Flush ends the stream. Held-back text goes to the channel of the current
// state; an unterminated thought segment is flushed as thought text.
func (f *Filter) Flush() []Segment {
	out := f.emit(nil, f.held)
	f.held = ""
	return out
}

// emit appends text for the current state, applying mode and trimming.
func (f *Filter) emit(out []Segment, text string) []Segment {
	if text == "" {
		return out
	}

	kind := Primary
	if f.state == stateInThought {
		if f.mode == ModeHide {
			return out
		}
		kind = Thought
	} else if f.trim && !f.started {
		text = strings.TrimLeft(text, " \t\r\n")
		if text == "" {
			return out
		}
		f.started = true
	}

	if n := len(out); n > 0 && out[n-1].Kind == kind {
		out[n-1].Text += text
		return out
	}
	return append(out, Segment{Kind: kind, Text: text})
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of marker.
func partialSuffix(s, marker string) int {
	n := len(marker) - 1
	if n > len(s) {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasPrefix(marker, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}

// =============================================================================
// CONVENIENCE
// =============================================================================

// Split runs fragments through a fresh filter and returns the concatenated
// primary and thought text.
func Split(mode Mode, fragments ...string) (primary, thought string) {
	f := NewFilter(mode)

	var p, th strings.Builder
	collect := func(segs []Segment) {
		for _, s := range segs {
			if s.Kind == Primary {
				p.WriteString(s.Text)
			} else {
				th.WriteString(s.Text)
			}
		}
	}

	for _, frag := range fragments {
		collect(f.Push(frag))
	}
	collect(f.Flush())
	return p.String(), th.String()
}
