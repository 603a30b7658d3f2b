// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// PALETTE
// =============================================================================

// Palette is one theme's colors (Catppuccin Mocha / Latte).
type Palette struct {
	Accent    lipgloss.Color
	User      lipgloss.Color
	Assistant lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Text      lipgloss.Color
	Secondary lipgloss.Color
	Muted     lipgloss.Color
	Border    lipgloss.Color
	Badge     lipgloss.Color
}

var (
	darkPalette = Palette{
		Accent:    "#A78BFA",
		User:      "#22D3EE",
		Assistant: "#A78BFA",
		Success:   "#34D399",
		Warning:   "#FBBF24",
		Error:     "#FB7185",
		Text:      "#CDD6F4",
		Secondary: "#A6ADC8",
		Muted:     "#6C7086",
		Border:    "#45475A",
		Badge:     "#313244",
	}

	lightPalette = Palette{
		Accent:    "#7C3AED",
		User:      "#0891B2",
		Assistant: "#7C3AED",
		Success:   "#059669",
		Warning:   "#D97706",
		Error:     "#E11D48",
		Text:      "#1F2937",
		Secondary: "#6B7280",
		Muted:     "#9CA3AF",
		Border:    "#D4D4D4",
		Badge:     "#E5E5E5",
	}
)

// =============================================================================
// THEME
// =============================================================================

// Theme holds the styles used by the terminal front end. Styles are bound
// to a lipgloss renderer so color output follows the writer's profile.
type Theme struct {
	Name    string
	Profile termenv.Profile
	Palette Palette

	renderer *lipgloss.Renderer

	Prompt    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Thought   lipgloss.Style
	Info      lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Bold      lipgloss.Style

	CodeFrame lipgloss.Style
	CodeBadge lipgloss.Style
	CodeLine  lipgloss.Style

	TableHeader  lipgloss.Style
	TableCurrent lipgloss.Style
}

// Themes lists the accepted theme names.
var Themes = []string{"dark", "light", "mono"}

// NewTheme builds the named theme for output written to w. With noColor set,
// or for the "mono" theme, every style renders plain text.
func NewTheme(name string, w io.Writer, noColor bool) (*Theme, error) {
	r := lipgloss.NewRenderer(w)

	var p Palette
	switch name {
	case "", "dark":
		name, p = "dark", darkPalette
		r.SetHasDarkBackground(true)
	case "light":
		p = lightPalette
		r.SetHasDarkBackground(false)
	case "mono":
		p = darkPalette
		noColor = true
	default:
		return nil, fmt.Errorf("unknown theme %q", name)
	}
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}

	t := &Theme{
		Name:     name,
		Profile:  r.ColorProfile(),
		Palette:  p,
		renderer: r,
	}

	t.Prompt = r.NewStyle().Foreground(p.User).Bold(true)
	t.User = r.NewStyle().Foreground(p.User).Bold(true)
	t.Assistant = r.NewStyle().Foreground(p.Assistant).Bold(true)
	t.Thought = r.NewStyle().Foreground(p.Muted).Italic(true)
	t.Info = r.NewStyle().Foreground(p.Secondary)
	t.Success = r.NewStyle().Foreground(p.Success)
	t.Warning = r.NewStyle().Foreground(p.Warning)
	t.Error = r.NewStyle().Foreground(p.Error).Bold(true)
	t.Muted = r.NewStyle().Foreground(p.Muted)
	t.Bold = r.NewStyle().Bold(true)

	t.CodeFrame = r.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(p.Border).
		Padding(0, 1)
	t.CodeBadge = r.NewStyle().
		Foreground(p.Secondary).
		Background(p.Badge).
		Padding(0, 1).
		Bold(true)
	t.CodeLine = r.NewStyle().
		Foreground(p.Muted).
		Width(4).
		Align(lipgloss.Right).
		MarginRight(1)

	t.TableHeader = r.NewStyle().Foreground(p.Accent).Bold(true)
	t.TableCurrent = r.NewStyle().Foreground(p.Success)
	return t, nil
}

// Colorless reports whether styles render without escape codes.
func (t *Theme) Colorless() bool {
	return t.Profile == termenv.Ascii
}

// IsDark reports whether the theme targets a dark background.
func (t *Theme) IsDark() bool {
	return t.Name != "light"
}
