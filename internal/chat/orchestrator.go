// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/retrochat/internal/codeblock"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/stream"
)

// SubmitUserTurn sends text as a user message in a session and streams the
// reply into sink. An empty sessionID means the current session; when none
// is selected a new one is created.
//
// The user message is stored before the request goes out. Whatever reply
// text arrives is stored too, also when the stream fails or ctx is
// canceled; in that case the returned error is the transport error and
// TurnResult.Partial is set. A failed save is reported as a *SaveError
// without undoing the turn in memory.
func (s *Service) SubmitUserTurn(ctx context.Context, sessionID, text string, sink Sink) (TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	if sink == nil {
		sink = Discard
	}

	e, err := s.get(sessionID)
	if errors.Is(err, ErrNoSession) {
		if _, err = s.NewSession(""); err == nil {
			e, err = s.get("")
		}
	}
	if err != nil {
		return TurnResult{}, err
	}

	s.mu.Lock()
	transport := s.transport
	params := s.params
	think := s.think
	trim := s.trim
	s.mu.Unlock()
	if transport == nil {
		return TurnResult{}, ErrNoTransport
	}

	if !e.mu.TryLock() {
		return TurnResult{}, ErrTurnInProgress
	}
	defer e.mu.Unlock()
	defer e.state.Store(int32(StateIdle))

	t := &turn{
		svc:    s,
		entry:  e,
		sink:   sink,
		filter: stream.NewFilter(think, stream.WithTrimLeading(trim)),
		start:  time.Now(),
	}
	t.result.SessionID = e.sess.ID

	e.sess.Append(model.NewUserMessage(text))
	e.state.Store(int32(StateStreaming))

	s.logger.Debug("starting turn", "session", e.sess.ID, "provider", transport.Name(), "model", params.Model, "history", e.sess.Len())

	st, err := transport.StartStream(ctx, model.BuildRequest(params, e.sess.History()))
	if err != nil {
		t.fail(ctx, err)
	} else {
		t.pump(ctx, st)
		st.Close()
	}

	e.state.Store(int32(StateFinalizing))
	return t.finalize(ctx)
}

// =============================================================================
// TURN
// =============================================================================

// turn carries the state of one SubmitUserTurn call.
type turn struct {
	svc    *Service
	entry  *entry
	sink   Sink
	filter *stream.Filter

	primary strings.Builder
	thought strings.Builder

	start  time.Time
	result TurnResult
}

// pump pulls fragments until the stream ends, fails or ctx is canceled.
func (t *turn) pump(ctx context.Context, st model.Stream) {
	for {
		if ctx.Err() != nil {
			t.fail(ctx, ctx.Err())
			return
		}

		frag, err := st.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.fail(ctx, err)
			}
			return
		}

		if t.result.Fragments == 0 {
			t.result.FirstFragment = time.Since(t.start)
		}
		t.result.Fragments++
		t.deliver(t.filter.Push(frag))
	}
}

// deliver forwards filtered segments to the sink and accumulates them.
func (t *turn) deliver(segs []stream.Segment) {
	for _, seg := range segs {
		switch seg.Kind {
		case stream.Primary:
			t.primary.WriteString(seg.Text)
			t.sink.Primary(seg.Text)
		case stream.Thought:
			t.thought.WriteString(seg.Text)
			t.sink.Thought(seg.Text)
		}
	}
}

// fail records the error that ended the turn early.
func (t *turn) fail(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, model.ErrCanceled) || errors.Is(ctx.Err(), context.Canceled) {
		t.result.Canceled = true
	}
	var te *model.TransportError
	if !errors.As(err, &te) {
		err = model.WrapNetError(ctx, "", "stream interrupted", err)
	}
	t.result.Err = err
	t.result.Partial = true
}

// finalize annotates and stores the reply, then reports the turn.
func (t *turn) finalize(ctx context.Context) (TurnResult, error) {
	s, sess := t.svc, t.entry.sess

	t.deliver(t.filter.Flush())
	raw := t.primary.String()
	t.result.Thought = t.thought.String()

	var errs []error
	if t.result.Err != nil {
		errs = append(errs, t.result.Err)
	}

	ann, err := codeblock.NewRegistry(sess, s.logger).Annotate(raw)
	if err != nil {
		s.logger.Error("code block registration failed", "session", sess.ID, "err", err)
		errs = append(errs, err)
	}
	t.result.Text = ann.Text
	t.result.CodeBlockIDs = ann.IDs

	// A failed request with no reply text adds no assistant entry.
	if raw != "" || t.result.Err == nil {
		sess.Append(model.NewAssistantMessage(ann.Text))
	}

	if err := s.store.Save(sess); err != nil {
		s.logger.Error("failed to save session", "session", sess.ID, "err", err)
		t.result.SaveErr = &SaveError{SessionID: sess.ID, Err: err}
		errs = append(errs, t.result.SaveErr)
	} else {
		s.indexUpsert(ctx, sess)
	}

	t.result.Duration = time.Since(t.start)
	s.logger.Debug("turn finished",
		"session", sess.ID,
		"fragments", t.result.Fragments,
		"first_fragment", t.result.FirstFragment,
		"duration", t.result.Duration,
		"code_blocks", len(t.result.CodeBlockIDs),
		"partial", t.result.Partial,
	)

	t.sink.Final(t.result)
	return t.result, errors.Join(errs...)
}
