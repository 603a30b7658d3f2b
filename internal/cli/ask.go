// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

// maxStdinBytes caps how much piped input ask will read.
const maxStdinBytes = 4 << 20

type askOptions struct {
	resume  bool
	name    string
	jsonOut bool
}

func (a *App) askCommand() *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Ask a single question and print the reply",
		Long: `Send one message and print the reply. Piped standard input is appended to
the prompt, so files can be asked about directly.

Each ask starts a new session unless --resume or --session is given.`,
		Example: `  retrochat ask "what does errgroup do?"
  git diff | retrochat ask "review this change"
  retrochat ask --resume "and in Rust?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd.Context(), args, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.resume, "resume", "r", false, "continue the last session")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "name for the new session")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the result as JSON")
	return cmd
}

func (a *App) runAsk(ctx context.Context, args []string, opts askOptions) error {
	prompt, err := a.askPrompt(args)
	if err != nil {
		return err
	}

	svc, err := a.openService(true)
	if err != nil {
		return err
	}
	switch {
	case a.session != "" || opts.resume:
		err = a.openSession(svc)
	default:
		_, err = svc.NewSession(opts.name)
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if opts.jsonOut {
		return outputJSON(a.Out, "ask", func() (any, error) {
			res, err := svc.SubmitUserTurn(ctx, "", prompt, nil)
			if err != nil {
				return nil, err
			}
			ids := res.CodeBlockIDs
			if ids == nil {
				ids = []int{}
			}
			return AskData{
				SessionID:    res.SessionID,
				Response:     res.Text,
				Thought:      res.Thought,
				CodeBlockIDs: ids,
				Partial:      res.Partial,
				DurationMS:   res.Duration.Milliseconds(),
			}, nil
		})
	}

	r, err := a.newRenderer()
	if err != nil {
		return err
	}
	width, height := terminalSize(a.Out)
	sink := newTerminalSink(a.Out, a.Err, r, sinkOptions{
		Live:    isTerminal(a.Out),
		Redraw:  true,
		Spinner: a.cfg.Display.Spinner,
		Width:   width,
		Height:  height,
	})
	res, err := svc.SubmitUserTurn(ctx, "", prompt, sink)
	if res.Canceled {
		// Exit non-zero; the sink already reported it.
		return res.Err
	}
	return turnError(res, err)
}

// askPrompt joins the arguments and any piped standard input.
func (a *App) askPrompt(args []string) (string, error) {
	prompt := strings.Join(args, " ")

	if !isTerminal(a.In) && a.In != nil {
		data, err := io.ReadAll(io.LimitReader(a.In, maxStdinBytes))
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if piped := strings.TrimSpace(string(data)); piped != "" {
			if prompt == "" {
				prompt = piped
			} else {
				prompt += "\n\n" + piped
			}
		}
	}

	if strings.TrimSpace(prompt) == "" {
		return "", usageErrorf("ask: no prompt given (pass it as arguments or on stdin)")
	}
	return prompt, nil
}
