// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Levels(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want log.Level
	}{
		{"default", Options{}, log.WarnLevel},
		{"verbose", Options{Verbose: true}, log.DebugLevel},
		{"quiet", Options{Quiet: true}, log.ErrorLevel},
		{"verbose wins", Options{Verbose: true, Quiet: true}, log.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Output = &bytes.Buffer{}
			logger, closer, err := Setup(tt.opts)
			require.NoError(t, err)
			defer closer.Close()
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestSetup_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := Setup(Options{Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("session skipped", "id", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "session skipped")
	assert.Contains(t, out, "abc")
}

func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "retrochat.log")
	logger, closer, err := Setup(Options{File: path, Verbose: true})
	require.NoError(t, err)

	logger.Debug("stream opened", "provider", "ollama")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "provider=ollama"), "logfmt output expected, got %q", data)
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))

	l := Discard()
	assert.Same(t, l, OrDiscard(l))
}
