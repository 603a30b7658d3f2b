// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package picker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/retrochat/internal/storage"
	"github.com/jeranaias/retrochat/internal/ui/render"
	"github.com/jeranaias/retrochat/internal/util"
)

// ErrCanceled is returned by Run when the user leaves without choosing.
var ErrCanceled = errors.New("session picker canceled")

// defaultRows is the list height when the window size is unknown.
const defaultRows = 10

// =============================================================================
// MODEL
// =============================================================================

// Model is a bubbletea model that lets the user type to filter the saved
// sessions and pick one.
type Model struct {
	all     []storage.Info
	visible []storage.Info
	current string

	query  string
	cursor int
	offset int
	rows   int

	keys  KeyMap
	theme *render.Theme

	chosen   string
	canceled bool
}

// New creates a picker over infos. current is marked in the list.
func New(infos []storage.Info, current string, theme *render.Theme) Model {
	m := Model{
		all:     infos,
		current: current,
		rows:    defaultRows,
		keys:    DefaultKeyMap(),
		theme:   theme,
	}
	m.filter()
	return m
}

// Chosen returns the selected session ID.
func (m Model) Chosen() (string, bool) {
	return m.chosen, m.chosen != ""
}

// Canceled reports whether the picker was dismissed.
func (m Model) Canceled() bool {
	return m.canceled
}

// Visible returns the sessions matching the current query, in display order.
func (m Model) Visible() []storage.Info {
	return m.visible
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Header, query and help lines.
		m.rows = max(msg.Height-4, 1)
		m.scroll()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.canceled = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Select):
			if len(m.visible) == 0 {
				return m, nil
			}
			m.chosen = m.visible[m.cursor].ID
			return m, tea.Quit

		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			m.scroll()

		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.visible)-1 {
				m.cursor++
			}
			m.scroll()

		case key.Matches(msg, m.keys.Backspace):
			if r := []rune(m.query); len(r) > 0 {
				m.query = string(r[:len(r)-1])
				m.filter()
			}

		case msg.Type == tea.KeySpace:
			m.query += " "
			m.filter()

		case msg.Type == tea.KeyRunes:
			m.query += string(msg.Runes)
			m.filter()
		}
	}
	return m, nil
}

// filter recomputes the visible list for the query and resets the cursor.
func (m *Model) filter() {
	m.cursor, m.offset = 0, 0

	q := strings.TrimSpace(m.query)
	if q == "" {
		m.visible = m.all
		return
	}

	type scored struct {
		info  storage.Info
		score int
	}
	var hits []scored
	for _, info := range m.all {
		if s, ok := fuzzyMatch(q, info.Name+" "+info.ID); ok {
			hits = append(hits, scored{info, s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	m.visible = make([]storage.Info, len(hits))
	for i, h := range hits {
		m.visible[i] = h.info
	}
}

// scroll keeps the cursor inside the window.
func (m *Model) scroll() {
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.rows {
		m.offset = m.cursor - m.rows + 1
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.chosen != "" || m.canceled {
		return ""
	}
	t := m.theme

	var b strings.Builder
	b.WriteString(t.TableHeader.Render("Load session"))
	b.WriteString("  ")
	b.WriteString(t.Prompt.Render("> ") + m.query)
	b.WriteString("\n")

	if len(m.visible) == 0 {
		b.WriteString(t.Muted.Render("  no matching sessions"))
		b.WriteString("\n")
	}

	end := min(m.offset+m.rows, len(m.visible))
	for i := m.offset; i < end; i++ {
		info := m.visible[i]
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		mark := " "
		if info.ID == m.current {
			mark = "*"
		}
		line := fmt.Sprintf("%s%s %s  %s",
			cursor, mark,
			util.PadWidth(info.Name, 36),
			t.Muted.Render(fmt.Sprintf("%d msgs, %s", info.Messages, info.LastModified.Local().Format("2006-01-02 15:04"))),
		)
		if i == m.cursor {
			line = t.Bold.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(t.Muted.Render(m.keys.helpLine()))
	return b.String()
}

// =============================================================================
// RUN
// =============================================================================

// Run shows the picker on in/out and returns the chosen session ID. It
// returns ErrCanceled when the user dismisses it or ctx ends first.
func Run(ctx context.Context, infos []storage.Info, current string, theme *render.Theme, in io.Reader, out io.Writer) (string, error) {
	if len(infos) == 0 {
		return "", errors.New("no saved sessions")
	}

	p := tea.NewProgram(New(infos, current, theme), tea.WithInput(in), tea.WithOutput(out))

	stop := context.AfterFunc(ctx, p.Kill)
	defer stop()

	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrCanceled
		}
		return "", fmt.Errorf("session picker: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return "", ErrCanceled
	}
	if id, ok := m.Chosen(); ok {
		return id, nil
	}
	return "", ErrCanceled
}
