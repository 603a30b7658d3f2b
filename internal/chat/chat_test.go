// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/retrochat/internal/codeblock"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/storage"
	"github.com/jeranaias/retrochat/internal/stream"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeStream yields frags, then err (or io.EOF). With block set it waits
// for ctx after the fragments instead.
type fakeStream struct {
	ctx    context.Context
	frags  []string
	err    error
	block  bool
	gate   chan struct{}
	i      int
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.gate != nil && s.i == 0 {
		<-s.gate
	}
	if s.i < len(s.frags) {
		s.i++
		return s.frags[s.i-1], nil
	}
	if s.block {
		<-s.ctx.Done()
		return "", model.WrapNetError(s.ctx, "fake", "read aborted", s.ctx.Err())
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeTransport struct {
	mu       sync.Mutex
	next     func() *fakeStream
	startErr error
	requests []model.ChatRequest
	last     *fakeStream
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) StartStream(ctx context.Context, req model.ChatRequest) (model.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	st := f.next()
	st.ctx = ctx
	f.last = st
	return st, nil
}

func replying(frags ...string) *fakeTransport {
	return &fakeTransport{next: func() *fakeStream {
		return &fakeStream{frags: frags}
	}}
}

// recorder is a Sink that keeps everything it is given.
type recorder struct {
	primary []string
	thought []string
	finals  []TurnResult
}

func (r *recorder) Primary(text string) { r.primary = append(r.primary, text) }
func (r *recorder) Thought(text string) { r.thought = append(r.thought, text) }
func (r *recorder) Final(t TurnResult)  { r.finals = append(r.finals, t) }

func newService(t *testing.T, tr model.Transport) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	svc, err := New(Options{
		Store:       store,
		Transport:   tr,
		Params:      model.DefaultParams(),
		ThinkMode:   stream.ModeHide,
		TrimLeading: true,
	})
	require.NoError(t, err)
	return svc, store
}

// =============================================================================
// TURNS
// =============================================================================

func TestSubmitUserTurn_TagsAndStoresReply(t *testing.T) {
	tr := replying("Here you go:\n", "```go\nfmt.Println(1)\n", "```\nDone.")
	svc, store := newService(t, tr)
	sink := &recorder{}

	res, err := svc.SubmitUserTurn(context.Background(), "", "print one", sink)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, res.CodeBlockIDs)
	assert.Contains(t, res.Text, "```go [CodeID: 1]\n")
	assert.False(t, res.Partial)
	assert.Equal(t, 3, res.Fragments)
	assert.Equal(t, "Here you go:\n```go\nfmt.Println(1)\n```\nDone.", strings.Join(sink.primary, ""))
	require.Len(t, sink.finals, 1)
	assert.Equal(t, res.Text, sink.finals[0].Text)

	// Persisted, and the request carried the system prompt.
	loaded, err := store.Load(res.SessionID)
	require.NoError(t, err)
	history := loaded.History()
	require.Len(t, history, 2)
	assert.Equal(t, model.NewUserMessage("print one"), history[0])
	assert.Equal(t, res.Text, history[1].Content)
	assert.Equal(t, 2, loaded.NextCodeBlockID())

	require.Len(t, tr.requests, 1)
	msgs := tr.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.True(t, tr.last.closed)

	code, err := svc.ResolveCodeBlock(res.SessionID, 1)
	require.NoError(t, err)
	assert.Equal(t, "fmt.Println(1)", code)
}

func TestSubmitUserTurn_ConsecutiveIDsAcrossTurns(t *testing.T) {
	replies := [][]string{
		{"```\na\n```"},
		{"```sh\nb\n```\nand\n```py\nc\n```"},
	}
	n := 0
	tr := &fakeTransport{next: func() *fakeStream {
		st := &fakeStream{frags: replies[n]}
		n++
		return st
	}}
	svc, _ := newService(t, tr)

	first, err := svc.SubmitUserTurn(context.Background(), "", "one", nil)
	require.NoError(t, err)
	second, err := svc.SubmitUserTurn(context.Background(), first.SessionID, "two", nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, first.CodeBlockIDs)
	assert.Equal(t, []int{2, 3}, second.CodeBlockIDs)

	_, err = svc.ResolveCodeBlock("", 4)
	assert.True(t, errors.Is(err, codeblock.ErrNotFound))
}

func TestSubmitUserTurn_PartialReplyOnTransportError(t *testing.T) {
	timeout := &model.TransportError{Provider: "fake", Type: model.ErrTypeTimeout, Message: "no data received in time"}
	tr := &fakeTransport{next: func() *fakeStream {
		return &fakeStream{frags: []string{"Hello "}, err: timeout}
	}}
	svc, store := newService(t, tr)

	res, err := svc.SubmitUserTurn(context.Background(), "", "hi", nil)
	require.Error(t, err)
	assert.True(t, model.IsTimeout(err))
	assert.True(t, res.Partial)
	assert.False(t, res.Canceled)
	assert.Equal(t, "Hello ", res.Text)
	assert.Same(t, timeout, res.Err)

	loaded, err := store.Load(res.SessionID)
	require.NoError(t, err)
	history := loaded.History()
	require.Len(t, history, 2)
	assert.Equal(t, model.NewAssistantMessage("Hello "), history[1])
	assert.Equal(t, StateIdle, svc.State(res.SessionID))
}

func TestSubmitUserTurn_SaveFailureKeepsTurn(t *testing.T) {
	svc, store := newService(t, replying("```\nx\n```"))
	sess, err := svc.NewSession("unsaveable")
	require.NoError(t, err)

	// A directory where the session file belongs makes every save fail.
	path := store.Path(sess.ID)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0700))

	res, err := svc.SubmitUserTurn(context.Background(), "", "code", nil)
	require.Error(t, err)
	var saveErr *SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, sess.ID, saveErr.SessionID)
	assert.Same(t, saveErr, res.SaveErr)
	assert.Equal(t, []int{1}, res.CodeBlockIDs)
	assert.False(t, res.Partial)

	current, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, current.Len())
	assert.Equal(t, res.Text, current.History()[1].Content)

	code, err := svc.ResolveCodeBlock("", 1)
	require.NoError(t, err)
	assert.Equal(t, "x", code)
}

func TestSubmitUserTurn_StartFailureKeepsUserMessage(t *testing.T) {
	tr := &fakeTransport{startErr: &model.TransportError{Provider: "fake", Type: model.ErrTypeConnection, Message: "refused"}}
	svc, store := newService(t, tr)

	res, err := svc.SubmitUserTurn(context.Background(), "", "anyone there?", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConnection))
	assert.True(t, res.Partial)

	loaded, err := store.Load(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []model.Message{model.NewUserMessage("anyone there?")}, loaded.History())
}

func TestSubmitUserTurn_CancelFinalizesAccumulated(t *testing.T) {
	tr := &fakeTransport{next: func() *fakeStream {
		return &fakeStream{frags: []string{"partial"}, block: true}
	}}
	svc, _ := newService(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := SinkFuncs{PrimaryFunc: func(string) { cancel() }}

	res, err := svc.SubmitUserTurn(ctx, "", "go", sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, res.Canceled)
	assert.True(t, res.Partial)
	assert.Equal(t, "partial", res.Text)

	history, err := svc.History("", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "partial", history[1].Content)
}

func TestSubmitUserTurn_ThinkModes(t *testing.T) {
	frags := []string{"  <thi", "nk>secret</th", "ink>\nAnswer"}

	t.Run("hide", func(t *testing.T) {
		svc, _ := newService(t, replying(frags...))
		sink := &recorder{}
		res, err := svc.SubmitUserTurn(context.Background(), "", "q", sink)
		require.NoError(t, err)
		assert.Equal(t, "Answer", res.Text)
		assert.Empty(t, sink.thought)
		assert.Empty(t, res.Thought)
	})

	t.Run("show", func(t *testing.T) {
		svc, _ := newService(t, replying(frags...))
		svc.SetThinkMode(stream.ModeShow)
		sink := &recorder{}
		res, err := svc.SubmitUserTurn(context.Background(), "", "q", sink)
		require.NoError(t, err)
		assert.Equal(t, "Answer", res.Text)
		assert.Equal(t, "secret", strings.Join(sink.thought, ""))
		assert.Equal(t, "secret", res.Thought)
	})
}

func TestSubmitUserTurn_RejectsConcurrentTurn(t *testing.T) {
	gate := make(chan struct{})
	tr := &fakeTransport{next: func() *fakeStream {
		return &fakeStream{frags: []string{"ok"}, gate: gate}
	}}
	svc, _ := newService(t, tr)
	sess, err := svc.NewSession("busy")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SubmitUserTurn(context.Background(), sess.ID, "first", nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return svc.State(sess.ID) == StateStreaming
	}, 2*time.Second, 5*time.Millisecond)

	_, err = svc.SubmitUserTurn(context.Background(), sess.ID, "second", nil)
	assert.ErrorIs(t, err, ErrTurnInProgress)
	assert.ErrorIs(t, svc.RenameSession(sess.ID, "other"), ErrTurnInProgress)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, svc.State(sess.ID))
}

func TestSubmitUserTurn_Validation(t *testing.T) {
	svc, _ := newService(t, nil)

	_, err := svc.SubmitUserTurn(context.Background(), "", "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.SubmitUserTurn(context.Background(), "", "hello", nil)
	assert.ErrorIs(t, err, ErrNoTransport)

	svc.SetTransport(replying("x"))
	_, err = svc.SubmitUserTurn(context.Background(), "missing-session", "hello", nil)
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

func TestSessionLifecycle(t *testing.T) {
	svc, store := newService(t, replying("```\nx\n```"))

	sess, err := svc.NewSession("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sess.Name(), "Chat Session "))
	assert.Equal(t, sess.ID, svc.CurrentID())

	_, err = svc.SubmitUserTurn(context.Background(), "", "q", nil)
	require.NoError(t, err)

	require.NoError(t, svc.RenameSession("", "Renamed"))
	require.NoError(t, svc.ClearHistory(""))

	loaded, err := store.Load(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loaded.Name())
	assert.Zero(t, loaded.Len())
	assert.Equal(t, 2, loaded.NextCodeBlockID(), "counter survives a clear")

	infos, err := svc.ListSessions()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Renamed", infos[0].Name)

	require.NoError(t, svc.DeleteSession(sess.ID))
	assert.Empty(t, svc.CurrentID())
	require.NoError(t, svc.DeleteSession(sess.ID), "delete is idempotent")
	assert.ErrorIs(t, svc.DeleteSession(""), ErrNoSession)

	_, err = svc.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestResume(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	svc, err := New(Options{Store: store})
	require.NoError(t, err)
	fresh, err := svc.Resume()
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, svc.CurrentID())

	other, err := svc.NewSession("other")
	require.NoError(t, err)

	again, err := New(Options{Store: store})
	require.NoError(t, err)
	resumed, err := again.Resume()
	require.NoError(t, err)
	assert.Equal(t, other.ID, resumed.ID)

	loaded, err := again.LoadSession(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, loaded.ID)
	last, ok := store.LastID()
	require.True(t, ok)
	assert.Equal(t, fresh.ID, last)
}

func TestSetParams_Validates(t *testing.T) {
	svc, _ := newService(t, nil)

	p := svc.Params()
	p.Temperature = 5
	assert.Error(t, svc.SetParams(p))

	p.Temperature = 1.2
	require.NoError(t, svc.SetParams(p))
	assert.Equal(t, 1.2, svc.Params().Temperature)
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:       "idle",
		StateStreaming:  "streaming",
		StateFinalizing: "finalizing",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}
