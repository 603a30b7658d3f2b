// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/retrochat/internal/logging"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// SEARCH INDEX
// =============================================================================

// indexSchema keeps one row per message in an FTS5 table. Session names are
// indexed alongside so a search can match either.
const indexSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    last_modified INTEGER NOT NULL
) WITHOUT ROWID;

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    session_id UNINDEXED,
    position UNINDEXED,
    role UNINDEXED,
    content,
    tokenize='porter unicode61'
);
`

// ErrIndexClosed is returned after Close.
var ErrIndexClosed = errors.New("search index closed")

// SearchResult is one matching message.
type SearchResult struct {
	SessionID   string
	SessionName string
	Position    int // index of the message in the session history
	Role        string
	Snippet     string
	Rank        float64
}

// Index is a full text index over session messages, kept in a SQLite
// database beside the session files. The JSON files stay authoritative; the
// index can always be rebuilt from them.
type Index struct {
	db     *sql.DB
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string, logger *log.Logger) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index schema: %w", err)
	}

	return &Index{db: db, logger: logging.OrDiscard(logger)}, nil
}

// Close closes the database.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.db.Close()
}

// Upsert replaces everything indexed for sess.
func (idx *Index) Upsert(ctx context.Context, sess *Session) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return ErrIndexClosed
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index update: %w", err)
	}
	defer tx.Rollback()

	if err := upsertTx(ctx, tx, sess); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertTx(ctx context.Context, tx *sql.Tx, sess *Session) error {
	if err := deleteTx(ctx, tx, sess.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sessions (id, name, last_modified) VALUES (?, ?, ?)",
		sess.ID, sess.Metadata.Name, sess.Metadata.LastModified.Unix()); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO messages_fts (session_id, position, role, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range sess.history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, sess.ID, i, string(m.Role), m.Content); err != nil {
			return fmt.Errorf("failed to index message: %w", err)
		}
	}
	return nil
}

func deleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages_fts WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove indexed messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove indexed session: %w", err)
	}
	return nil
}

// Remove drops a session from the index.
func (idx *Index) Remove(ctx context.Context, id string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return ErrIndexClosed
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index update: %w", err)
	}
	defer tx.Rollback()
	if err := deleteTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Rebuild replaces the index contents with every readable session in store.
func (idx *Index) Rebuild(ctx context.Context, store *Store) (int, error) {
	sessions, err := store.loadAll()
	if err != nil {
		return 0, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return 0, ErrIndexClosed
	}

	start := time.Now()
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages_fts"); err != nil {
		return 0, fmt.Errorf("failed to clear index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return 0, fmt.Errorf("failed to clear index: %w", err)
	}
	for _, sess := range sessions {
		if err := upsertTx(ctx, tx, sess); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rebuild: %w", err)
	}

	idx.logger.Debug("search index rebuilt", "sessions", len(sessions), "took", time.Since(start))
	return len(sessions), nil
}

// Search returns messages matching query, best matches first. Each word of
// query must appear; a trailing * on a word makes it a prefix match.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	match := buildMatch(query)
	if match == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, ErrIndexClosed
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT messages_fts.session_id, COALESCE(sessions.name, ''), messages_fts.position, messages_fts.role,
		       snippet(messages_fts, 3, '[', ']', '...', 12), messages_fts.rank
		FROM messages_fts
		LEFT JOIN sessions ON sessions.id = messages_fts.session_id
		WHERE messages_fts MATCH ?
		ORDER BY messages_fts.rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.SessionID, &r.SessionName, &r.Position, &r.Role, &r.Snippet, &r.Rank); err != nil {
			return nil, fmt.Errorf("failed to read search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// buildMatch quotes each word of a free-text query as an FTS5 string so
// punctuation in user input cannot break the MATCH syntax.
func buildMatch(query string) string {
	var terms []string
	for _, word := range strings.Fields(query) {
		prefix := strings.HasSuffix(word, "*")
		word = strings.Trim(word, "*")
		if strings.IndexFunc(word, isWordRune) < 0 {
			continue
		}
		term := `"` + strings.ReplaceAll(word, `"`, `""`) + `"`
		if prefix {
			term += "*"
		}
		terms = append(terms, term)
	}
	return strings.Join(terms, " ")
}
