// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/retrochat/internal/logging"
	"github.com/jeranaias/retrochat/internal/util"
)

const (
	filePrefix = "session_"
	fileSuffix = ".json"

	// LastSessionFile is the default name of the last-active pointer file.
	LastSessionFile = ".last_session"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidID reports whether id can name a session file.
func ValidID(id string) bool {
	return idPattern.MatchString(id) && !strings.Contains(id, "..")
}

// =============================================================================
// SESSION STORE
// =============================================================================

// Info is the listing entry for one session.
type Info struct {
	ID           string
	Name         string
	CreatedAt    time.Time
	LastModified time.Time
	Messages     int
	Preview      string
}

// Store persists sessions as session_<id>.json files in one directory.
// Writes are atomic. The Store itself is safe for concurrent use; callers
// serialize mutations of a single Session.
type Store struct {
	dir      string
	lastPath string
	logger   *log.Logger
	now      func() time.Time

	// mu guards the last-session pointer file.
	mu sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for recoverable anomalies.
func WithLogger(l *log.Logger) StoreOption {
	return func(s *Store) { s.logger = logging.OrDiscard(l) }
}

// WithLastSessionPath overrides where the last-active pointer is kept
// (default: <dir>/.last_session).
func WithLastSessionPath(path string) StoreOption {
	return func(s *Store) { s.lastPath = path }
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore opens (creating if needed) the session directory.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	s := &Store{
		dir:      dir,
		lastPath: filepath.Join(dir, LastSessionFile),
		logger:   logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the session directory.
func (s *Store) Dir() string {
	return s.dir
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Path returns the file path for a session ID.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, filePrefix+id+fileSuffix)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads a session. It returns ErrSessionNotFound when no file exists
// and ErrSessionCorrupt when the file cannot be decoded.
func (s *Store) Load(id string) (*Session, error) {
	if !ValidID(id) {
		return nil, &SessionError{ID: id, Kind: ErrInvalidID}
	}
	path := s.Path(id)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &SessionError{ID: id, Kind: ErrSessionNotFound}
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, &SessionError{ID: id, Kind: ErrSessionCorrupt, Cause: err}
	}
	sess.ID = id

	fallback := s.now()
	if info, err := os.Stat(path); err == nil {
		fallback = info.ModTime()
	}
	before := sess.nextID
	sess.repair(fallback)
	if before != 0 && before != sess.nextID {
		s.logger.Warn("raised code block counter", "session", id, "stored", before, "now", sess.nextID)
	}
	return sess, nil
}

// Save writes the session atomically, stamps its last-modified time and
// records it as the last active session.
func (s *Store) Save(sess *Session) error {
	if !ValidID(sess.ID) {
		return &SessionError{ID: sess.ID, Kind: ErrInvalidID}
	}
	sess.repair(s.now())
	sess.Metadata.LastModified = s.now()

	if err := util.AtomicWriteJSON(s.Path(sess.ID), sess, 0600); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	if err := s.SetLast(sess.ID); err != nil {
		s.logger.Warn("could not record last session", "session", sess.ID, "err", err)
	}
	return nil
}

// Exists reports whether a session file exists.
func (s *Store) Exists(id string) bool {
	if !ValidID(id) {
		return false
	}
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Rename changes a session's name on disk.
func (s *Store) Rename(id, name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("session name must not be empty")
	}
	sess, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	sess.Metadata.Name = name
	if err := s.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
// If the session was the last active one the pointer is cleared.
func (s *Store) Delete(id string) error {
	if !ValidID(id) {
		return &SessionError{ID: id, Kind: ErrInvalidID}
	}
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.readLast(); ok && last == id {
		if err := os.Remove(s.lastPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to clear last session: %w", err)
		}
	}
	return nil
}

// =============================================================================
// LAST SESSION POINTER
// =============================================================================

// SetLast records id as the last active session.
func (s *Store) SetLast(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return util.AtomicWriteFileWithDir(s.lastPath, []byte(id), 0600, 0700)
}

// LastID returns the recorded last active session ID.
func (s *Store) LastID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLast()
}

func (s *Store) readLast() (string, bool) {
	data, err := os.ReadFile(s.lastPath)
	if err != nil {
		return "", false
	}
	id := strings.TrimSpace(string(data))
	return id, id != ""
}

// LoadLast returns the last active session if the pointer names a loadable
// one, otherwise the most recently modified loadable session. It returns
// (nil, nil) when there is none.
func (s *Store) LoadLast() (*Session, error) {
	if id, ok := s.LastID(); ok {
		sess, err := s.Load(id)
		if err == nil {
			return sess, nil
		}
		s.logger.Warn("last session unavailable, falling back to newest", "session", id, "err", err)
	}

	sessions, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	sortByModified(sessions)
	return sessions[0], nil
}

// =============================================================================
// LISTING
// =============================================================================

// List returns every readable session, most recently modified first.
// Corrupt files are skipped with a warning.
func (s *Store) List() ([]Info, error) {
	sessions, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	sortByModified(sessions)

	infos := make([]Info, len(sessions))
	for i, sess := range sessions {
		infos[i] = sess.Info()
	}
	return infos, nil
}

// Info summarizes the session for listings.
func (s *Session) Info() Info {
	info := Info{
		ID:           s.ID,
		Name:         s.Metadata.Name,
		CreatedAt:    s.Metadata.CreatedAt,
		LastModified: s.Metadata.LastModified,
		Messages:     len(s.history),
	}
	for _, m := range s.history {
		if m.Role == "user" && m.Content != "" {
			info.Preview = util.TruncateRunes(strings.Join(strings.Fields(m.Content), " "), 80)
			break
		}
	}
	return info
}

// IDs returns the IDs of all session files, readable or not.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || util.IsTempFile(name) ||
			!strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if ValidID(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// loadAll reads every session file in parallel, skipping unreadable ones.
func (s *Store) loadAll() ([]*Session, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}

	loaded := make([]*Session, len(ids))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		g.Go(func() error {
			sess, err := s.Load(id)
			if err != nil {
				s.logger.Warn("skipping unreadable session", "session", id, "err", err)
				return nil
			}
			loaded[i] = sess
			return nil
		})
	}
	_ = g.Wait()

	return slices.DeleteFunc(loaded, func(sess *Session) bool { return sess == nil }), nil
}

func sortByModified(sessions []*Session) {
	slices.SortFunc(sessions, func(a, b *Session) int {
		if c := b.Metadata.LastModified.Compare(a.Metadata.LastModified); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
