// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// fdHolder is implemented by *os.File.
type fdHolder interface {
	Fd() uintptr
}

// isTerminal reports whether v is a file attached to a terminal. Readers and
// writers that are not files (buffers, pipes wrapped in other types) never
// are.
func isTerminal(v any) bool {
	f, ok := v.(fdHolder)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// TERMINAL SIZE
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// DefaultTerminalHeight is the fallback height when detection fails
	DefaultTerminalHeight = 24

	// MinTerminalWidth is the minimum width we'll use for wrapping
	MinTerminalWidth = 40
)

// terminalSize returns the size of the terminal behind v, or the defaults
// when v is not a terminal.
func terminalSize(v any) (width, height int) {
	f, ok := v.(fdHolder)
	if !ok {
		return DefaultTerminalWidth, DefaultTerminalHeight
	}
	w, h, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return DefaultTerminalWidth, DefaultTerminalHeight
	}
	if w < MinTerminalWidth {
		w = MinTerminalWidth
	}
	return w, h
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

// colorsEnabled reports whether colored output should be written to w.
// NO_COLOR (https://no-color.org/) wins over FORCE_COLOR, which wins over
// TTY detection.
func colorsEnabled(w any) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return isTerminal(w)
}

// =============================================================================
// INTERACTIVE INPUT HELPERS
// =============================================================================

// requiresTTY returns an error if in is not a terminal.
func requiresTTY(in any, operation string) error {
	if !isTerminal(in) {
		return &TTYRequiredError{Operation: operation}
	}
	return nil
}

// TTYRequiredError is returned when an operation requires a TTY but none is available.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	if e.Operation != "" {
		return "stdin is not a terminal; cannot " + e.Operation + " interactively"
	}
	return "stdin is not a terminal; interactive input not available"
}
