// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the structured logger shared by retrochat packages.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Options controls logger construction.
type Options struct {
	// Verbose enables debug output and caller reporting.
	Verbose bool

	// Quiet restricts output to errors. Verbose wins if both are set.
	Quiet bool

	// File, when set, receives logfmt records instead of Output.
	File string

	// Output is the destination when File is empty. Defaults to stderr.
	Output io.Writer
}

// Setup returns a logger configured from opts and a closer for any file it
// opened. The closer is never nil.
func Setup(opts Options) (*log.Logger, io.Closer, error) {
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.Output != nil {
		w = opts.Output
	}

	formatter := log.TextFormatter
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closer = f, f
		formatter = log.LogfmtFormatter
	}

	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "retrochat",
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		ReportCaller:    opts.Verbose,
		Formatter:       formatter,
		Level:           levelFor(opts),
	})
	return logger, closer, nil
}

// Discard returns a logger that drops everything. Used as the default by
// packages whose callers pass no logger, and by tests.
func Discard() *log.Logger {
	l := log.New(io.Discard)
	l.SetLevel(log.FatalLevel)
	return l
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

func levelFor(opts Options) log.Level {
	switch {
	case opts.Verbose:
		return log.DebugLevel
	case opts.Quiet:
		return log.ErrorLevel
	default:
		return log.WarnLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
