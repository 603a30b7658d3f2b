// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package picker

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/retrochat/internal/storage"
	"github.com/jeranaias/retrochat/internal/ui/render"
)

func testInfos() []storage.Info {
	now := time.Now()
	return []storage.Info{
		{ID: "id-1", Name: "Go generics", Messages: 4, LastModified: now},
		{ID: "id-2", Name: "Rust lifetimes", Messages: 2, LastModified: now},
		{ID: "id-3", Name: "Grocery list", Messages: 1, LastModified: now},
	}
}

func newModel(t *testing.T) Model {
	t.Helper()
	theme, err := render.NewTheme("mono", &bytes.Buffer{}, true)
	require.NoError(t, err)
	return New(testInfos(), "id-2", theme)
}

func press(m Model, msgs ...tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	var next tea.Model = m
	for _, msg := range msgs {
		next, cmd = next.(Model).Update(msg)
	}
	return next.(Model), cmd
}

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPicker_SelectWithArrows(t *testing.T) {
	m, cmd := press(newModel(t),
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyDown},
		tea.KeyMsg{Type: tea.KeyUp},
		tea.KeyMsg{Type: tea.KeyEnter},
	)
	require.NotNil(t, cmd)

	id, ok := m.Chosen()
	require.True(t, ok)
	assert.Equal(t, "id-2", id)
	assert.Empty(t, m.View())
}

func TestPicker_FilterByTyping(t *testing.T) {
	m, _ := press(newModel(t), typed("gro"))
	require.NotEmpty(t, m.Visible())
	assert.Equal(t, "id-3", m.Visible()[0].ID)

	m, _ = press(m, typed("zzz"))
	assert.Empty(t, m.Visible())
	assert.Contains(t, m.View(), "no matching sessions")

	// Enter with nothing visible does nothing.
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	_, ok := m.Chosen()
	assert.False(t, ok)

	m, _ = press(m,
		tea.KeyMsg{Type: tea.KeyBackspace},
		tea.KeyMsg{Type: tea.KeyBackspace},
		tea.KeyMsg{Type: tea.KeyBackspace},
	)
	assert.Equal(t, "id-3", m.Visible()[0].ID)
}

func TestPicker_Cancel(t *testing.T) {
	m, cmd := press(newModel(t), tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.True(t, m.Canceled())
	_, ok := m.Chosen()
	assert.False(t, ok)
}

func TestPicker_ViewMarksCurrent(t *testing.T) {
	view := newModel(t).View()
	assert.Contains(t, view, "> ")
	assert.Contains(t, view, "* Rust lifetimes")
	assert.Contains(t, view, "4 msgs")
}

func TestPicker_Scrolls(t *testing.T) {
	m, _ := press(newModel(t), tea.WindowSizeMsg{Width: 80, Height: 6})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.offset)
	assert.NotContains(t, m.View(), "Go generics")
}

func TestFuzzyMatch(t *testing.T) {
	tests := []struct {
		query, target string
		want          bool
	}{
		{"", "anything", true},
		{"gg", "Go generics", true},
		{"rl", "Rust lifetimes", true},
		{"xyz", "Go generics", false},
		{"toolong", "short", false},
	}
	for _, tc := range tests {
		if _, got := fuzzyMatch(tc.query, tc.target); got != tc.want {
			t.Errorf("fuzzyMatch(%q, %q) = %v, want %v", tc.query, tc.target, got, tc.want)
		}
	}

	start, _ := fuzzyMatch("go", "Go generics")
	mid, _ := fuzzyMatch("go", "a long go")
	if start <= mid {
		t.Errorf("prefix match scored %d, not above %d", start, mid)
	}
}
