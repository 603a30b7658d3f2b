// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/retrochat/internal/codeblock"
	"github.com/jeranaias/retrochat/internal/logging"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/storage"
	"github.com/jeranaias/retrochat/internal/stream"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Service.
type Options struct {
	// Store persists sessions. Required.
	Store *storage.Store

	// Index mirrors sessions for full-text search. Optional.
	Index *storage.Index

	// Transport talks to the active provider. It may be set later with
	// SetTransport.
	Transport model.Transport

	Params      model.Params
	ThinkMode   stream.Mode
	TrimLeading bool

	Logger *log.Logger
}

// =============================================================================
// SERVICE
// =============================================================================

// entry is a loaded session plus the lock held for turns and mutations.
type entry struct {
	mu    sync.Mutex
	sess  *storage.Session
	state atomic.Int32
}

// Service owns the loaded sessions and runs chat turns against them.
// It is safe for concurrent use; turns on different sessions run in
// parallel, a session runs one turn at a time.
type Service struct {
	store  *storage.Store
	index  *storage.Index
	logger *log.Logger

	mu        sync.Mutex
	sessions  map[string]*entry
	current   string
	transport model.Transport
	params    model.Params
	think     stream.Mode
	trim      bool
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("chat: store is required")
	}
	params := opts.Params
	if params.Model == "" {
		params = model.DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return &Service{
		store:     opts.Store,
		index:     opts.Index,
		logger:    logging.OrDiscard(opts.Logger),
		sessions:  make(map[string]*entry),
		transport: opts.Transport,
		params:    params,
		think:     opts.ThinkMode,
		trim:      opts.TrimLeading,
	}, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// Transport returns the active transport, or nil.
func (s *Service) Transport() model.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// SetTransport switches provider. Turns already streaming keep theirs.
func (s *Service) SetTransport(t model.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
}

// Params returns a copy of the model parameters.
func (s *Service) Params() model.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.params
	p.Stop = append([]string(nil), s.params.Stop...)
	return p
}

// SetParams replaces the model parameters after validating them.
func (s *Service) SetParams(p model.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
	return nil
}

// ThinkMode returns how thought segments are handled.
func (s *Service) ThinkMode() stream.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.think
}

// SetThinkMode changes how thought segments are handled from the next turn.
func (s *Service) SetThinkMode(m stream.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.think = m
}

// SetTrimLeading toggles dropping leading whitespace from replies.
func (s *Service) SetTrimLeading(trim bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trim = trim
}

// State reports the orchestrator phase of a loaded session. Sessions that
// are not loaded are idle.
func (s *Service) State(sessionID string) State {
	s.mu.Lock()
	e, ok := s.sessions[s.resolveID(sessionID)]
	s.mu.Unlock()
	if !ok {
		return StateIdle
	}
	return State(e.state.Load())
}

// =============================================================================
// SESSION LOOKUP
// =============================================================================

// resolveID maps "" to the current session. Callers hold s.mu.
func (s *Service) resolveID(id string) string {
	if id == "" {
		return s.current
	}
	return id
}

// get returns the loaded entry for id, loading it from the store if needed.
func (s *Service) get(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = s.resolveID(id)
	if id == "" {
		return nil, ErrNoSession
	}
	if e, ok := s.sessions[id]; ok {
		return e, nil
	}
	sess, err := s.store.Load(id)
	if err != nil {
		return nil, err
	}
	e := &entry{sess: sess}
	s.sessions[id] = e
	return e, nil
}

// add registers a session and makes it current.
func (s *Service) add(sess *storage.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = &entry{sess: sess}
	s.current = sess.ID
}

// CurrentID returns the current session's ID, or "".
func (s *Service) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Current returns a snapshot of the current session.
func (s *Service) Current() (*storage.Session, error) {
	return s.Snapshot("")
}

// Snapshot returns a copy of a session, loading it if needed. An empty ID
// means the current session.
func (s *Service) Snapshot(id string) (*storage.Session, error) {
	e, err := s.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone(), nil
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// NewSession creates, saves and selects a session, recording it as the
// last active one. An empty name gets the default timestamped one.
func (s *Service) NewSession(name string) (*storage.Session, error) {
	sess := storage.NewSession(strings.TrimSpace(name), s.store.Now())
	if err := s.store.Save(sess); err != nil {
		return nil, err
	}
	s.add(sess)
	if err := s.store.SetLast(sess.ID); err != nil {
		s.logger.Warn("could not record last session", "session", sess.ID, "err", err)
	}
	s.indexUpsert(context.Background(), sess)
	s.logger.Info("created session", "session", sess.ID, "name", sess.Name())
	return sess.Clone(), nil
}

// LoadSession loads a session and makes it current.
func (s *Service) LoadSession(id string) (*storage.Session, error) {
	if id == "" {
		return nil, storage.ErrInvalidID
	}
	e, err := s.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	if err := s.store.SetLast(id); err != nil {
		s.logger.Warn("could not record last session", "session", id, "err", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s.logger.Info("loaded session", "session", id, "messages", e.sess.Len())
	return e.sess.Clone(), nil
}

// Resume makes the last active session current, creating a new session
// when there is none.
func (s *Service) Resume() (*storage.Session, error) {
	sess, err := s.store.LoadLast()
	if err != nil {
		s.logger.Warn("could not load last session, starting a new one", "err", err)
		sess = nil
	}
	if sess == nil {
		return s.NewSession("")
	}

	s.mu.Lock()
	if _, ok := s.sessions[sess.ID]; !ok {
		s.sessions[sess.ID] = &entry{sess: sess}
	}
	s.current = sess.ID
	s.mu.Unlock()
	if err := s.store.SetLast(sess.ID); err != nil {
		s.logger.Warn("could not record last session", "session", sess.ID, "err", err)
	}
	return s.Snapshot(sess.ID)
}

// ListSessions returns all readable sessions, newest first.
func (s *Service) ListSessions() ([]storage.Info, error) {
	return s.store.List()
}

// DeleteSession removes a session. Deleting a missing session is not an
// error. Deleting the current session leaves no session selected; the next
// turn starts a fresh one.
func (s *Service) DeleteSession(id string) error {
	s.mu.Lock()
	id = s.resolveID(id)
	e := s.sessions[id]
	s.mu.Unlock()
	if id == "" {
		return ErrNoSession
	}

	if e != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
	}
	if err := s.store.Delete(id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, id)
	if s.current == id {
		s.current = ""
	}
	s.mu.Unlock()

	if s.index != nil {
		if err := s.index.Remove(context.Background(), id); err != nil {
			s.logger.Warn("could not remove session from index", "session", id, "err", err)
		}
	}
	s.logger.Info("deleted session", "session", id)
	return nil
}

// RenameSession renames a session.
func (s *Service) RenameSession(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("session name must not be empty")
	}
	return s.mutate(id, func(sess *storage.Session) {
		sess.Metadata.Name = name
	})
}

// ClearHistory drops a session's messages and code blocks. The code block
// counter is kept, so IDs handed out earlier are never reused.
func (s *Service) ClearHistory(id string) error {
	return s.mutate(id, func(sess *storage.Session) {
		sess.ClearHistory()
	})
}

// mutate applies fn to a session under its lock and saves it.
func (s *Service) mutate(id string, fn func(*storage.Session)) error {
	e, err := s.get(id)
	if err != nil {
		return err
	}
	if !e.mu.TryLock() {
		return ErrTurnInProgress
	}
	defer e.mu.Unlock()

	fn(e.sess)
	if err := s.store.Save(e.sess); err != nil {
		return &SaveError{SessionID: e.sess.ID, Err: err}
	}
	s.indexUpsert(context.Background(), e.sess)
	return nil
}

// History returns the last n messages of a session, or all when n <= 0.
func (s *Service) History(id string, n int) ([]model.Message, error) {
	sess, err := s.Snapshot(id)
	if err != nil {
		return nil, err
	}
	history := sess.History()
	if n > 0 && n < len(history) {
		history = history[len(history)-n:]
	}
	return history, nil
}

// ResolveCodeBlock returns the content registered under id in a session.
func (s *Service) ResolveCodeBlock(sessionID string, id int) (string, error) {
	e, err := s.get(sessionID)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return codeblock.NewRegistry(e.sess, s.logger).Lookup(id)
}

// SearchSessions runs a full-text query over every indexed message.
func (s *Service) SearchSessions(ctx context.Context, query string, limit int) ([]storage.SearchResult, error) {
	if s.index == nil {
		return nil, ErrSearchDisabled
	}
	return s.index.Search(ctx, query, limit)
}

// RebuildIndex re-indexes every session on disk.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, ErrSearchDisabled
	}
	return s.index.Rebuild(ctx, s.store)
}

func (s *Service) indexUpsert(ctx context.Context, sess *storage.Session) {
	if s.index == nil {
		return
	}
	if err := s.index.Upsert(context.WithoutCancel(ctx), sess); err != nil {
		s.logger.Warn("could not index session", "session", sess.ID, "err", err)
	}
}
