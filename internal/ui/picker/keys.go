// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package picker

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the picker's key bindings.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Select    key.Binding
	Cancel    key.Binding
	Backspace key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "ctrl+p"),
			key.WithHelp("up", "previous"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "ctrl+n", "tab"),
			key.WithHelp("down", "next"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "load"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "cancel"),
		),
		Backspace: key.NewBinding(
			key.WithKeys("backspace"),
		),
	}
}

// helpLine renders the bindings shown under the list.
func (k KeyMap) helpLine() string {
	var parts []string
	for _, b := range []key.Binding{k.Up, k.Down, k.Select, k.Cancel} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}
