// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Spinner draws an animated "waiting" line until stopped. It borrows the
// frames and rate of a bubbles spinner but writes directly to w, so it
// works outside a bubbletea program.
type Spinner struct {
	w      *termenv.Output
	frames spinner.Spinner
	label  string
	style  lipgloss.Style

	once    sync.Once
	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner returns a stopped spinner writing to w.
func (r *Renderer) NewSpinner(w io.Writer, label string) *Spinner {
	return &Spinner{
		w:      termenv.NewOutput(w),
		frames: spinner.Dot,
		label:  label,
		style:  r.theme.Muted,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins drawing in a goroutine.
func (s *Spinner) Start() {
	if s.started.Swap(true) {
		return
	}
	go s.run()
}

func (s *Spinner) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.frames.FPS)
	defer ticker.Stop()

	for i := 0; ; i++ {
		frame := s.frames.Frames[i%len(s.frames.Frames)]
		s.clearLine()
		fmt.Fprint(s.w, s.style.Render(frame+" "+s.label))
		select {
		case <-s.stop:
			s.clearLine()
			return
		case <-ticker.C:
		}
	}
}

// clearLine erases the line and returns the cursor to column 0.
func (s *Spinner) clearLine() {
	s.w.ClearLine()
	fmt.Fprint(s.w, "\r")
}

// Stop erases the spinner line and waits for the goroutine to exit. It is
// safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
	if s.started.Load() {
		<-s.done
	}
}
