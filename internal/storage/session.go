// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/retrochat/internal/model"
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// DefaultNameLayout formats the creation time into a default session name.
const DefaultNameLayout = "2006-01-02 15:04"

// Metadata describes a session.
type Metadata struct {
	Name         string
	CreatedAt    time.Time
	LastModified time.Time
}

// Session is one conversation with its code block table. It implements
// codeblock.Table. A Session is not safe for concurrent use; the chat
// service serializes access per session.
type Session struct {
	ID       string
	Metadata Metadata

	history    []model.Message
	codeBlocks map[int]string
	nextID     int
}

// NewSession creates an empty session with a fresh ID. An empty name gets
// the default "Chat Session <date>" name.
func NewSession(name string, now time.Time) *Session {
	if name == "" {
		name = DefaultName(now)
	}
	return &Session{
		ID: uuid.NewString(),
		Metadata: Metadata{
			Name:         name,
			CreatedAt:    now,
			LastModified: now,
		},
		codeBlocks: map[int]string{},
		nextID:     1,
	}
}

// DefaultName returns the name given to unnamed sessions.
func DefaultName(t time.Time) string {
	return "Chat Session " + t.Format(DefaultNameLayout)
}

// Name returns the session's display name.
func (s *Session) Name() string {
	return s.Metadata.Name
}

// History returns a copy of the conversation, oldest first.
func (s *Session) History() []model.Message {
	return slices.Clone(s.history)
}

// Len returns the number of messages.
func (s *Session) Len() int {
	return len(s.history)
}

// Append adds a message to the end of the history.
func (s *Session) Append(m model.Message) {
	s.history = append(s.history, m)
}

// ClearHistory drops all messages and code blocks. The ID counter is kept so
// identifiers handed out earlier are never reused.
func (s *Session) ClearHistory() {
	s.history = nil
	s.codeBlocks = map[int]string{}
}

// CodeBlock implements codeblock.Table.
func (s *Session) CodeBlock(id int) (string, bool) {
	content, ok := s.codeBlocks[id]
	return content, ok
}

// PutCodeBlock implements codeblock.Table.
func (s *Session) PutCodeBlock(id int, content string) {
	if s.codeBlocks == nil {
		s.codeBlocks = map[int]string{}
	}
	s.codeBlocks[id] = content
}

// NextCodeBlockID implements codeblock.Table.
func (s *Session) NextCodeBlockID() int {
	return s.nextID
}

// SetNextCodeBlockID implements codeblock.Table.
func (s *Session) SetNextCodeBlockID(id int) {
	s.nextID = id
}

// CodeBlockIDs returns the assigned IDs in ascending order.
func (s *Session) CodeBlockIDs() []int {
	return slices.Sorted(maps.Keys(s.codeBlocks))
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.history = slices.Clone(s.history)
	c.codeBlocks = maps.Clone(s.codeBlocks)
	return &c
}

// repair raises the counter above every stored ID and fills missing
// metadata. fallback supplies timestamps when the file carried none.
func (s *Session) repair(fallback time.Time) {
	if s.codeBlocks == nil {
		s.codeBlocks = map[int]string{}
	}
	highest := 0
	for id := range s.codeBlocks {
		highest = max(highest, id)
	}
	if s.nextID <= highest {
		s.nextID = highest + 1
	}
	if s.nextID < 1 {
		s.nextID = 1
	}

	if s.Metadata.CreatedAt.IsZero() {
		s.Metadata.CreatedAt = fallback
	}
	if s.Metadata.LastModified.IsZero() {
		s.Metadata.LastModified = fallback
	}
	if s.Metadata.Name == "" {
		s.Metadata.Name = DefaultName(s.Metadata.CreatedAt)
	}
}

// =============================================================================
// JSON ENCODING
// =============================================================================

// sessionFile is the on-disk layout. Field names match files written by
// earlier releases and must not change.
type sessionFile struct {
	History    []model.Message   `json:"conversation_history"`
	Metadata   *fileMetadata     `json:"metadata,omitempty"`
	CodeBlocks map[string]string `json:"code_blocks"`
	NextID     *int              `json:"next_code_block_global_id,omitempty"`
}

type fileMetadata struct {
	CreatedAt    string `json:"created_at,omitempty"`
	Name         string `json:"name,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// MarshalJSON writes the session in the on-disk layout. The ID is not
// stored; it comes from the file name.
func (s *Session) MarshalJSON() ([]byte, error) {
	f := sessionFile{
		History:    s.history,
		CodeBlocks: make(map[string]string, len(s.codeBlocks)),
		NextID:     &s.nextID,
		Metadata: &fileMetadata{
			CreatedAt:    formatTime(s.Metadata.CreatedAt),
			Name:         s.Metadata.Name,
			LastModified: formatTime(s.Metadata.LastModified),
		},
	}
	if f.History == nil {
		f.History = []model.Message{}
	}
	for id, content := range s.codeBlocks {
		f.CodeBlocks[strconv.Itoa(id)] = content
	}
	return json.Marshal(f)
}

// UnmarshalJSON reads the on-disk layout. Missing fields are left zero;
// Store.Load repairs them.
func (s *Session) UnmarshalJSON(data []byte) error {
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	s.history = f.History
	s.codeBlocks = make(map[int]string, len(f.CodeBlocks))
	for key, content := range f.CodeBlocks {
		id, err := strconv.Atoi(key)
		if err != nil || id < 1 {
			return fmt.Errorf("invalid code block id %q", key)
		}
		s.codeBlocks[id] = content
	}
	s.nextID = 0
	if f.NextID != nil {
		s.nextID = *f.NextID
	}
	s.Metadata = Metadata{}
	if f.Metadata != nil {
		s.Metadata.Name = f.Metadata.Name
		s.Metadata.CreatedAt = parseTime(f.Metadata.CreatedAt)
		s.Metadata.LastModified = parseTime(f.Metadata.LastModified)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// timeLayouts are tried in order. Older files carry naive local timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
