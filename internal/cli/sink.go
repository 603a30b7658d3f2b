// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/muesli/termenv"

	"github.com/jeranaias/retrochat/internal/chat"
	"github.com/jeranaias/retrochat/internal/codeblock"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/ui/render"
	"github.com/jeranaias/retrochat/internal/util"
)

// tabWidth is the column count assumed for a tab when measuring output.
const tabWidth = 8

// =============================================================================
// TERMINAL SINK
// =============================================================================

// terminalSink shows a turn as it streams. In live mode fragments are
// written as they arrive and, once the turn is final, the raw text is
// erased and replaced by the rendered reply with its CodeIDs. In plain mode
// (output is not a terminal) nothing is shown until the turn is final, then
// the tagged text is written verbatim.
type terminalSink struct {
	out    io.Writer
	errOut io.Writer
	r      *render.Renderer
	term   *termenv.Output

	live    bool
	redraw  bool
	spinner *render.Spinner
	width   int
	height  int

	// shown is everything written in live mode since the label, without
	// styling, for measuring how many rows to erase.
	shown    strings.Builder
	thinking bool
}

type sinkOptions struct {
	Live    bool
	Redraw  bool
	Spinner bool
	Width   int
	Height  int
}

func newTerminalSink(out, errOut io.Writer, r *render.Renderer, opts sinkOptions) *terminalSink {
	s := &terminalSink{
		out:    out,
		errOut: errOut,
		r:      r,
		term:   termenv.NewOutput(out),
		live:   opts.Live,
		redraw: opts.Redraw,
		width:  opts.Width,
		height: opts.Height,
	}
	if s.width <= 0 {
		s.width = DefaultTerminalWidth
	}
	if s.height <= 0 {
		s.height = DefaultTerminalHeight
	}
	if s.live {
		s.write(s.r.Label(model.RoleAssistant)+"\n", model.RoleAssistant.DisplayName()+":\n")
		if opts.Spinner {
			s.spinner = r.NewSpinner(out, "waiting for response")
			s.spinner.Start()
		}
	}
	return s
}

// write prints styled and records its unstyled form.
func (s *terminalSink) write(styled, plain string) {
	fmt.Fprint(s.out, styled)
	s.shown.WriteString(plain)
}

func (s *terminalSink) stopSpinner() {
	if s.spinner != nil {
		s.spinner.Stop()
	}
}

// Primary implements chat.Sink.
func (s *terminalSink) Primary(text string) {
	if !s.live {
		return
	}
	s.stopSpinner()
	if s.thinking {
		s.write("\n\n", "\n\n")
		s.thinking = false
	}
	s.write(text, text)
}

// Thought implements chat.Sink.
func (s *terminalSink) Thought(text string) {
	if !s.live {
		return
	}
	s.stopSpinner()
	s.thinking = true
	s.write(s.r.Thought(text), text)
}

// Final implements chat.Sink.
func (s *terminalSink) Final(res chat.TurnResult) {
	s.stopSpinner()
	if !s.live {
		s.finalPlain(res)
		return
	}

	if s.redraw && res.Text != "" && s.fits() {
		s.erase()
		fmt.Fprintln(s.out, s.r.Label(model.RoleAssistant))
		if res.Thought != "" {
			fmt.Fprintln(s.out, s.r.Thought(strings.TrimSpace(res.Thought)))
			fmt.Fprintln(s.out)
		}
		fmt.Fprintln(s.out, s.r.Reply(res.Text))
	} else {
		fmt.Fprintln(s.out)
		if len(res.CodeBlockIDs) > 0 {
			fmt.Fprintln(s.out, s.r.Info("Code blocks saved: %s (use /copy <id>)", joinInts(res.CodeBlockIDs)))
		}
	}
	s.status(s.out, res)
}

func (s *terminalSink) finalPlain(res chat.TurnResult) {
	if res.Thought != "" {
		fmt.Fprintf(s.errOut, "<think>%s</think>\n", res.Thought)
	}
	if res.Text != "" {
		fmt.Fprintln(s.out, strings.TrimRight(res.Text, "\n"))
	}
	s.status(s.errOut, res)
}

// status reports how an unfinished turn ended.
func (s *terminalSink) status(w io.Writer, res chat.TurnResult) {
	switch {
	case res.Canceled:
		fmt.Fprintln(w, s.r.Warning("[Canceled] partial reply saved"))
	case res.Err != nil && res.Partial && res.Text != "":
		fmt.Fprintln(w, s.r.Warning("[Interrupted] partial reply saved: %v", res.Err))
	case res.SaveErr != nil:
		fmt.Fprintln(w, s.r.Error(res.SaveErr))
	}
}

// rows returns how many terminal rows the shown text occupies, counting the
// row the cursor is on.
func (s *terminalSink) rows() int {
	n := 0
	for _, line := range strings.Split(s.shown.String(), "\n") {
		w := util.StringWidth(strings.ReplaceAll(line, "\t", strings.Repeat(" ", tabWidth)))
		if w == 0 {
			n++
			continue
		}
		n += (w + s.width - 1) / s.width
	}
	return n
}

// fits reports whether all shown rows are still on screen.
func (s *terminalSink) fits() bool {
	return s.rows() < s.height
}

// erase clears every row of the shown text, leaving the cursor at the
// start of the first one.
func (s *terminalSink) erase() {
	s.term.ClearLines(s.rows() - 1)
	fmt.Fprint(s.out, "\r")
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

// turnError filters the error SubmitUserTurn returns down to what the
// caller still has to report: the sink already shows cancellation and
// partial replies.
func turnError(res chat.TurnResult, err error) error {
	if err == nil || res.Canceled {
		return nil
	}
	if res.Err != nil && res.Partial && res.Text != "" && res.SaveErr == nil &&
		errors.Is(err, res.Err) && !errors.Is(err, codeblock.ErrIDCollision) {
		return nil
	}
	return err
}
