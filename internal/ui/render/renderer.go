// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/retrochat/internal/codeblock"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/storage"
	"github.com/jeranaias/retrochat/internal/util"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// Options configures a Renderer.
type Options struct {
	Theme       string
	NoColor     bool
	Markdown    bool
	Highlight   bool
	LineNumbers bool
	Width       int
}

// Renderer formats chat output for the terminal.
type Renderer struct {
	theme       *Theme
	markdown    bool
	highlight   bool
	lineNumbers bool
	width       int
	md          *glamour.TermRenderer
}

// New creates a renderer for output written to w.
func New(w io.Writer, opts Options) (*Renderer, error) {
	theme, err := NewTheme(opts.Theme, w, opts.NoColor)
	if err != nil {
		return nil, err
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}

	r := &Renderer{
		theme:       theme,
		markdown:    opts.Markdown,
		highlight:   opts.Highlight,
		lineNumbers: opts.LineNumbers,
		width:       opts.Width,
	}

	if opts.Markdown {
		style := "dark"
		switch {
		case theme.Colorless():
			style = "notty"
		case !theme.IsDark():
			style = "light"
		}
		r.md, err = glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(opts.Width-4),
		)
		if err != nil {
			// Plain text still works.
			r.md = nil
		}
	}
	return r, nil
}

// Theme returns the renderer's theme.
func (r *Renderer) Theme() *Theme {
	return r.theme
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// =============================================================================
// MESSAGES
// =============================================================================

// Reply renders a finished assistant message: prose through the markdown
// renderer, code blocks framed with their CodeID.
func (r *Renderer) Reply(text string) string {
	var b strings.Builder
	pos := 0
	for _, span := range codeblock.ExtractAll(text) {
		b.WriteString(r.prose(text[pos:span.Start]))
		id := 0
		if span.HasID {
			id = span.EmbeddedID
		}
		b.WriteString(r.CodeBlock(span.Language, id, span.Content))
		b.WriteString("\n")
		pos = span.End
	}
	b.WriteString(r.prose(text[pos:]))
	return strings.TrimRight(b.String(), "\n")
}

// prose renders text between code blocks.
func (r *Renderer) prose(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if r.md == nil {
		return strings.Trim(text, "\n") + "\n"
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n") + "\n"
}

// Label returns the styled speaker label for a role.
func (r *Renderer) Label(role model.Role) string {
	switch role {
	case model.RoleUser:
		return r.theme.User.Render(role.DisplayName() + ":")
	case model.RoleAssistant:
		return r.theme.Assistant.Render(role.DisplayName() + ":")
	default:
		return r.theme.Muted.Render(role.DisplayName() + ":")
	}
}

// Message renders a stored history entry with its label.
func (r *Renderer) Message(msg model.Message) string {
	body := msg.Content
	if msg.Role == model.RoleAssistant {
		body = r.Reply(body)
	}
	return r.Label(msg.Role) + "\n" + body
}

// Thought styles thought text.
func (r *Renderer) Thought(text string) string {
	return r.theme.Thought.Render(text)
}

// =============================================================================
// STATUS LINES
// =============================================================================

func (r *Renderer) Info(format string, args ...any) string {
	return r.theme.Info.Render(fmt.Sprintf(format, args...))
}

func (r *Renderer) Success(format string, args ...any) string {
	return r.theme.Success.Render(fmt.Sprintf(format, args...))
}

func (r *Renderer) Warning(format string, args ...any) string {
	return r.theme.Warning.Render(fmt.Sprintf(format, args...))
}

// Error renders an error with an "[Error]" tag.
func (r *Renderer) Error(err error) string {
	return r.theme.Error.Render("[Error]") + " " + err.Error()
}

// Prompt renders the REPL prompt.
func (r *Renderer) Prompt(text string) string {
	return r.theme.Prompt.Render(text)
}

// =============================================================================
// TABLES
// =============================================================================

const (
	idColumn   = 36
	nameColumn = 32
)

// SessionTable lists sessions, marking current with "*".
func (r *Renderer) SessionTable(infos []storage.Info, current string) string {
	if len(infos) == 0 {
		return r.theme.Muted.Render("No saved sessions.")
	}

	var b strings.Builder
	header := fmt.Sprintf("  %s  %s  %5s  %s",
		util.PadWidth("ID", idColumn),
		util.PadWidth("NAME", nameColumn),
		"MSGS",
		"LAST MODIFIED",
	)
	b.WriteString(r.theme.TableHeader.Render(header))

	for _, info := range infos {
		marker := "  "
		if info.ID == current {
			marker = "* "
		}
		line := fmt.Sprintf("%s%s  %s  %5d  %s",
			marker,
			util.PadWidth(util.TruncateWidth(info.ID, idColumn), idColumn),
			util.PadWidth(util.TruncateWidth(info.Name, nameColumn), nameColumn),
			info.Messages,
			info.LastModified.Local().Format("2006-01-02 15:04"),
		)
		if info.ID == current {
			line = r.theme.TableCurrent.Render(line)
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

// SearchResults lists full-text search hits.
func (r *Renderer) SearchResults(results []storage.SearchResult) string {
	if len(results) == 0 {
		return r.theme.Muted.Render("No matches.")
	}

	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s #%d %s\n    %s",
			r.theme.Bold.Render(util.TruncateWidth(res.SessionName, nameColumn)),
			r.theme.Muted.Render("("+res.SessionID+")"),
			res.Position+1,
			r.Label(model.Role(res.Role)),
			strings.Join(strings.Fields(res.Snippet), " "),
		)
	}
	return b.String()
}
