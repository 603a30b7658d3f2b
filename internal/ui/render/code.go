// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/muesli/termenv"
)

// =============================================================================
// CODE BLOCK FRAME
// =============================================================================

// CodeBlock renders a code block inside a rounded frame whose title shows
// the language and the block's CodeID, e.g. "[CodeID: 3] go". id 0 omits
// the tag.
func (r *Renderer) CodeBlock(language string, id int, code string) string {
	t := r.theme

	body := code
	if r.highlight && !t.Colorless() {
		body = highlightCode(code, language, t)
	}

	lines := strings.Split(body, "\n")
	if r.lineNumbers {
		for i, line := range lines {
			lines[i] = t.CodeLine.Render(strconv.Itoa(i+1)) + line
		}
	}

	var title []string
	if id > 0 {
		title = append(title, "[CodeID: "+strconv.Itoa(id)+"]")
	}
	if language != "" {
		title = append(title, language)
	}

	content := strings.Join(lines, "\n")
	if len(title) > 0 {
		content = t.CodeBadge.Render(strings.Join(title, " ")) + "\n" + content
	}

	width := r.width - 2
	if width < 20 {
		width = 20
	}
	return t.CodeFrame.MaxWidth(width).Render(content)
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// highlightCode colors code with chroma. It returns code unchanged when
// tokenizing or formatting fails.
func highlightCode(code, language string, t *Theme) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	styleName := "monokai"
	if !t.IsDark() {
		styleName = "github"
	}
	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get(formatterFor(t.Profile))
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

// formatterFor picks the chroma terminal formatter for a color profile.
func formatterFor(p termenv.Profile) string {
	switch p {
	case termenv.TrueColor:
		return "terminal16m"
	case termenv.ANSI256:
		return "terminal256"
	default:
		return "terminal16"
	}
}
