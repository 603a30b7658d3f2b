// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/retrochat/internal/chat"
	"github.com/jeranaias/retrochat/internal/commands"
	"github.com/jeranaias/retrochat/internal/config"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/storage"
	"github.com/jeranaias/retrochat/internal/ui/render"
)

const codeReply = "Try this:\n\n```go\nfmt.Println(\"hi\")\n```\n"

type fakeTransport struct {
	reply string
	err   error
}

func (f fakeTransport) Name() string { return "fake" }

func (f fakeTransport) StartStream(context.Context, model.ChatRequest) (model.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return model.NewTextStream(f.reply), nil
}

type testApp struct {
	dir    string
	config string
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf("[storage]\nsessions_dir = %q\nsearch_index = false\n", filepath.Join(dir, "sessions"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))
	return &testApp{dir: dir, config: cfgPath}
}

// run executes one command line against a fresh App.
func (ta *testApp) run(t *testing.T, stdin string, transport fakeTransport, args ...string) error {
	t.Helper()
	ta.out = &bytes.Buffer{}
	ta.errOut = &bytes.Buffer{}
	app := NewApp("test")
	app.In = strings.NewReader(stdin)
	app.Out = ta.out
	app.Err = ta.errOut
	app.OpenTransport = func(string, config.ProviderConfig) (model.Transport, error) {
		return transport, nil
	}
	root := app.Command()
	root.SetArgs(append([]string{"--config", ta.config, "--no-color"}, args...))
	return root.Execute()
}

func (ta *testApp) store(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.NewStore(filepath.Join(ta.dir, "sessions"),
		storage.WithLastSessionPath(filepath.Join(ta.dir, storage.LastSessionFile)))
	require.NoError(t, err)
	return s
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_PrintsTaggedReply(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.run(t, "", fakeTransport{reply: codeReply}, "ask", "print", "hi"))

	assert.Contains(t, ta.out.String(), "```go [CodeID: 1]")
	assert.Contains(t, ta.out.String(), `fmt.Println("hi")`)

	infos, err := ta.store(t).List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].Messages)
	assert.Equal(t, "print hi", infos[0].Preview)
}

func TestAsk_StdinAppended(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.run(t, "package main\n", fakeTransport{reply: "ok"}, "ask", "review"))

	infos, err := ta.store(t).List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "review package main", infos[0].Preview)
}

func TestAsk_JSON(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.run(t, "", fakeTransport{reply: codeReply}, "ask", "--json", "code please"))

	var resp struct {
		Success bool    `json:"success"`
		Command string  `json:"command"`
		Data    AskData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "ask", resp.Command)
	assert.Equal(t, []int{1}, resp.Data.CodeBlockIDs)
	assert.Contains(t, resp.Data.Response, "[CodeID: 1]")
	assert.NotEmpty(t, resp.Data.SessionID)
}

func TestAsk_NoPrompt(t *testing.T) {
	ta := newTestApp(t)
	err := ta.run(t, "", fakeTransport{reply: "x"}, "ask")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestAsk_TransportError(t *testing.T) {
	ta := newTestApp(t)
	terr := &model.TransportError{Provider: "fake", Type: model.ErrTypeConnection, Message: "connection refused"}
	err := ta.run(t, "", fakeTransport{err: terr}, "ask", "hello")
	require.Error(t, err)
	assert.Equal(t, ExitNetworkError, ExitCode(err))
}

func TestAsk_ResumeContinuesSession(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.run(t, "", fakeTransport{reply: "one"}, "ask", "first"))
	require.NoError(t, ta.run(t, "", fakeTransport{reply: "two"}, "ask", "--resume", "second"))

	infos, err := ta.store(t).List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 4, infos[0].Messages)
}

// =============================================================================
// CHAT REPL
// =============================================================================

func TestChat_PipedInput(t *testing.T) {
	ta := newTestApp(t)
	input := "hello there\n/history\n/copy 9\n/quit\nnever sent\n"
	require.NoError(t, ta.run(t, input, fakeTransport{reply: codeReply}, "chat"))

	out := ta.out.String()
	assert.Contains(t, out, "retrochat test")
	assert.Contains(t, out, "[CodeID: 1]")
	assert.Contains(t, out, "hello there")
	assert.Contains(t, out, "code block 9")

	infos, err := ta.store(t).List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].Messages)
}

func TestChat_ResumesLastSession(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.run(t, "one\n", fakeTransport{reply: "a"}, "chat"))
	require.NoError(t, ta.run(t, "two\n", fakeTransport{reply: "b"}, "-q"))

	infos, err := ta.store(t).List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 4, infos[0].Messages)
}

func TestChat_UnknownSession(t *testing.T) {
	ta := newTestApp(t)
	err := ta.run(t, "", fakeTransport{reply: "a"}, "--session", "missing", "chat")
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, ExitCode(err))
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSessions_ListRenameDelete(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.run(t, "", fakeTransport{reply: "ok"}, "ask", "--name", "First", "hi"))

	require.NoError(t, ta.run(t, "", fakeTransport{}, "sessions", "list"))
	assert.Contains(t, ta.out.String(), "First")

	infos, err := ta.store(t).List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	id := infos[0].ID

	require.NoError(t, ta.run(t, "", fakeTransport{}, "sessions", "rename", id, "Renamed", "chat"))
	require.NoError(t, ta.run(t, "", fakeTransport{}, "sessions", "list", "--json"))
	var resp struct {
		Data []SessionData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ta.out.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Renamed chat", resp.Data[0].Name)
	assert.True(t, resp.Data[0].Current)

	require.NoError(t, ta.run(t, "", fakeTransport{}, "sessions", "show", id))
	assert.Contains(t, ta.out.String(), "Renamed chat")
	assert.Contains(t, ta.out.String(), "hi")

	require.NoError(t, ta.run(t, "", fakeTransport{}, "sessions", "delete", id))
	assert.False(t, ta.store(t).Exists(id))
}

func TestSessions_Export(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.run(t, "", fakeTransport{reply: codeReply}, "ask", "hi"))
	infos, err := ta.store(t).List()
	require.NoError(t, err)
	require.Len(t, infos, 1)

	path := filepath.Join(ta.dir, "out.json")
	require.NoError(t, ta.run(t, "", fakeTransport{}, "sessions", "export", infos[0].ID, "-f", "json", "-o", path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[CodeID: 1]")

	err = ta.run(t, "", fakeTransport{}, "sessions", "export", infos[0].ID, "-f", "pdf")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestSessions_SearchDisabled(t *testing.T) {
	ta := newTestApp(t)
	err := ta.run(t, "", fakeTransport{}, "sessions", "search", "anything")
	assert.ErrorIs(t, err, chat.ErrSearchDisabled)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_PathInitGetSet(t *testing.T) {
	dir := t.TempDir()
	ta := &testApp{dir: dir, config: filepath.Join(dir, "nested", "config.toml")}

	require.NoError(t, ta.run(t, "", fakeTransport{}, "config", "path"))
	assert.Equal(t, ta.config, strings.TrimSpace(ta.out.String()))

	require.NoError(t, ta.run(t, "", fakeTransport{}, "config", "init"))
	_, err := os.Stat(ta.config)
	require.NoError(t, err)

	err = ta.run(t, "", fakeTransport{}, "config", "init")
	assert.Equal(t, ExitUsageError, ExitCode(err))
	require.NoError(t, ta.run(t, "", fakeTransport{}, "config", "init", "--force"))

	require.NoError(t, ta.run(t, "", fakeTransport{}, "config", "set", "params.temperature", "0.2"))
	require.NoError(t, ta.run(t, "", fakeTransport{}, "config", "get", "params.temperature"))
	assert.Equal(t, "0.2", strings.TrimSpace(ta.out.String()))

	err = ta.run(t, "", fakeTransport{}, "config", "get", "no.such.key")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	cfg, err := config.Load(ta.config)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, cfg.Params.Temperature, 1e-9)
}

func TestConfig_ShowRedactsKeys(t *testing.T) {
	ta := newTestApp(t)
	content := fmt.Sprintf(`active_provider = "openrouter"

[storage]
sessions_dir = %q

[providers.openrouter]
kind = "openrouter"
base_url = "https://openrouter.ai/api/v1"
api_key = "sk-secret"
`, filepath.Join(ta.dir, "sessions"))
	require.NoError(t, os.WriteFile(ta.config, []byte(content), 0600))

	require.NoError(t, ta.run(t, "", fakeTransport{}, "config", "show"))
	assert.NotContains(t, ta.out.String(), "sk-secret")
	assert.Contains(t, ta.out.String(), "[REDACTED]")
}

func TestConfig_Keys(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.run(t, "", fakeTransport{}, "config", "keys"))
	assert.Contains(t, ta.out.String(), "params.temperature")
	assert.Contains(t, ta.out.String(), "display.think")
}

func TestVersion(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.run(t, "", fakeTransport{}, "version"))
	assert.Equal(t, "retrochat test\n", ta.out.String())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitGeneralError},
		{"usage", usageErrorf("bad"), ExitUsageError},
		{"command usage", &commands.UsageError{Usage: "/copy <id>"}, ExitUsageError},
		{"provider", fmt.Errorf("select: %w", config.ErrProviderNotFound), ExitConfigError},
		{"not found", &storage.SessionError{ID: "x", Kind: storage.ErrSessionNotFound}, ExitNotFoundError},
		{"canceled", &model.TransportError{Type: model.ErrTypeCanceled}, ExitCanceled},
		{"timeout", &model.TransportError{Type: model.ErrTypeTimeout}, ExitTimeoutError},
		{"unauthorized", &model.TransportError{Type: model.ErrTypeStatus, Status: 401}, ExitAuthError},
		{"connection", &model.TransportError{Type: model.ErrTypeConnection}, ExitNetworkError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTurnError(t *testing.T) {
	streamErr := &model.TransportError{Type: model.ErrTypeTimeout, Message: "idle"}

	tests := []struct {
		name    string
		res     chat.TurnResult
		err     error
		wantNil bool
	}{
		{"success", chat.TurnResult{}, nil, true},
		{"canceled", chat.TurnResult{Canceled: true, Err: context.Canceled}, context.Canceled, true},
		{"partial shown", chat.TurnResult{Partial: true, Text: "half", Err: streamErr}, streamErr, true},
		{"nothing received", chat.TurnResult{Err: streamErr}, streamErr, false},
		{"partial not saved", chat.TurnResult{Partial: true, Text: "half", Err: streamErr, SaveErr: errors.New("disk")}, streamErr, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := turnError(tt.res, tt.err)
			if (got == nil) != tt.wantNil {
				t.Errorf("turnError() = %v, wantNil %v", got, tt.wantNil)
			}
		})
	}
}

func TestSinkRows(t *testing.T) {
	s := &terminalSink{width: 10, height: 5}
	s.shown.WriteString("Assistant:\n")
	assert.Equal(t, 2, s.rows())

	s.shown.WriteString(strings.Repeat("x", 25))
	assert.Equal(t, 4, s.rows())
	assert.True(t, s.fits())

	s.shown.WriteString("\n\n")
	assert.False(t, s.fits())
}

func TestSinkErase(t *testing.T) {
	var out bytes.Buffer
	r, err := render.New(&out, render.Options{Theme: "mono", NoColor: true})
	require.NoError(t, err)
	s := newTerminalSink(&out, &out, r, sinkOptions{Width: 10, Height: 5})
	s.shown.WriteString("Assistant:\n" + strings.Repeat("x", 15))
	require.Equal(t, 3, s.rows())

	s.erase()

	var want bytes.Buffer
	termenv.NewOutput(&want).ClearLines(2)
	want.WriteString("\r")
	assert.Equal(t, want.String(), out.String())
}
