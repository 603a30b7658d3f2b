// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package codeblock

import (
	"iter"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// SPAN
// =============================================================================

// Span is one fenced code block found in a message.
type Span struct {
	// Language is the fence's language tag, possibly empty.
	Language string

	// EmbeddedID is the value of a [CodeID: N] tag on the opening fence.
	// Only meaningful when HasID is true.
	EmbeddedID int
	HasID      bool

	// Content is the body between the fences with line endings normalized
	// and leading/trailing blank lines removed.
	Content string

	// Start and End delimit the whole block (opening fence through closing
	// fence) as byte offsets into the scanned text.
	Start, End int

	// headerEnd is the offset of the line break ending the opening fence.
	// Rewriting replaces text[Start:headerEnd].
	headerEnd int
}

// Header returns the opening fence line for the span tagged with id.
func (s Span) Header(id int) string {
	if s.Language == "" {
		return "```" + tagFor(id)
	}
	return "```" + s.Language + " " + tagFor(id)
}

// tagFor formats the marker embedded in opening fences.
func tagFor(id int) string {
	return "[CodeID: " + strconv.Itoa(id) + "]"
}

// =============================================================================
// EXTRACTION
// =============================================================================

// fencePattern matches a fenced block: opening fence, optional language,
// optional ID tag, newline, shortest body, optional newline, closing fence.
// Nested fences are not supported; the body ends at the nearest "```".
var fencePattern = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z0-9._+#-]*)[ \\t]*(?:\\[CodeID:[ \\t]*(\\d+)\\])?[ \\t]*\\r?\\n(.*?)\\r?\\n?[ \\t]*```")

// Extract returns the code blocks in text in source order. The sequence is
// lazy and can be ranged over any number of times; each pass rescans text.
// It never fails: text without well-formed fences yields nothing.
func Extract(text string) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		offset := 0
		for offset < len(text) {
			loc := fencePattern.FindStringSubmatchIndex(text[offset:])
			if loc == nil {
				return
			}
			if !yield(newSpan(text, offset, loc)) {
				return
			}
			offset += loc[1]
		}
	}
}

// ExtractAll collects Extract into a slice.
func ExtractAll(text string) []Span {
	var spans []Span
	for span := range Extract(text) {
		spans = append(spans, span)
	}
	return spans
}

// newSpan builds a Span from submatch indices relative to text[offset:].
func newSpan(text string, offset int, loc []int) Span {
	span := Span{
		Start:    offset + loc[0],
		End:      offset + loc[1],
		Language: text[offset+loc[2] : offset+loc[3]],
		Content:  normalizeBody(text[offset+loc[6] : offset+loc[7]]),
	}

	// The match guarantees a newline after the header, and neither the
	// language nor the tag can contain one.
	span.headerEnd = span.Start + strings.IndexByte(text[span.Start:], '\n')
	if text[span.headerEnd-1] == '\r' {
		span.headerEnd--
	}

	if loc[4] >= 0 {
		if id, err := strconv.Atoi(text[offset+loc[4] : offset+loc[5]]); err == nil {
			span.EmbeddedID = id
			span.HasID = true
		}
	}
	return span
}

// normalizeBody converts CRLF to LF and drops blank lines at either end of
// the body. Indentation of the first and last real lines is kept.
func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	lines := strings.Split(body, "\n")

	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	for i := start; i < end; i++ {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	return strings.Join(lines[start:end], "\n")
}

// Rewrite returns text with each span's opening fence replaced by one that
// carries the matching id. spans must come from scanning text, in order, and
// ids must be parallel to spans.
func Rewrite(text string, spans []Span, ids []int) string {
	if len(spans) == 0 {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text) + len(spans)*16)

	last := 0
	for i, span := range spans {
		sb.WriteString(text[last:span.Start])
		sb.WriteString(span.Header(ids[i]))
		last = span.headerEnd
	}
	sb.WriteString(text[last:])
	return sb.String()
}
