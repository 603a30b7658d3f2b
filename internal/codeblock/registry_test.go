// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package codeblock

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapTable is an in-memory Table.
type mapTable struct {
	blocks map[int]string
	next   int
}

func newMapTable(next int) *mapTable {
	return &mapTable{blocks: make(map[int]string), next: next}
}

func (m *mapTable) CodeBlock(id int) (string, bool) {
	c, ok := m.blocks[id]
	return c, ok
}
func (m *mapTable) PutCodeBlock(id int, content string) { m.blocks[id] = content }
func (m *mapTable) NextCodeBlockID() int                { return m.next }
func (m *mapTable) SetNextCodeBlockID(id int)           { m.next = id }

func blocks(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "step %d\n```sh\necho %d\n```\n", i, i)
	}
	return sb.String()
}

func TestAnnotate_ConsecutiveIDsFromCounter(t *testing.T) {
	table := newMapTable(5)
	reg := NewRegistry(table, nil)

	out, err := reg.Annotate(blocks(3))
	require.NoError(t, err)

	assert.Equal(t, []int{5, 6, 7}, out.IDs)
	assert.Equal(t, 8, table.next)
	assert.Equal(t, "echo 0", table.blocks[5])
	assert.Equal(t, "echo 2", table.blocks[7])
	assert.Contains(t, out.Text, "```sh [CodeID: 6]\necho 1\n```")
}

func TestAnnotate_Idempotent(t *testing.T) {
	table := newMapTable(1)
	reg := NewRegistry(table, nil)

	first, err := reg.Annotate(blocks(4))
	require.NoError(t, err)

	second, err := reg.Annotate(first.Text)
	require.NoError(t, err)

	assert.Equal(t, first.IDs, second.IDs)
	assert.Equal(t, first.Text, second.Text)
	assert.Len(t, table.blocks, 4)
	assert.Equal(t, 5, table.next)
}

func TestAnnotate_IdenticalContentGetsDistinctIDs(t *testing.T) {
	table := newMapTable(1)
	reg := NewRegistry(table, nil)

	out, err := reg.Annotate("```\nsame\n```\n```\nsame\n```")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out.IDs)
}

func TestAnnotate_NoBlocks(t *testing.T) {
	table := newMapTable(3)
	out, err := NewRegistry(table, nil).Annotate("just words")
	require.NoError(t, err)
	assert.Equal(t, "just words", out.Text)
	assert.Empty(t, out.IDs)
	assert.Equal(t, 3, table.next)
}

func TestResolve_EmbeddedKnownID(t *testing.T) {
	table := newMapTable(4)
	table.blocks[2] = "original"
	reg := NewRegistry(table, nil)

	id, err := reg.Resolve(Span{HasID: true, EmbeddedID: 2, Content: "edited"})
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	assert.Equal(t, "original", table.blocks[2], "tag is trusted, stored content untouched")
	assert.Equal(t, 4, table.next)
}

func TestResolve_AdoptsUnknownEmbeddedID(t *testing.T) {
	table := newMapTable(3)
	reg := NewRegistry(table, nil)

	id, err := reg.Resolve(Span{HasID: true, EmbeddedID: 9, Content: "foreign"})
	require.NoError(t, err)
	assert.Equal(t, 9, id)
	assert.Equal(t, "foreign", table.blocks[9])
	assert.Equal(t, 10, table.next)

	id, err = reg.Resolve(Span{Content: "fresh"})
	require.NoError(t, err)
	assert.Equal(t, 10, id)
}

func TestResolve_AdoptBelowCounterKeepsCounter(t *testing.T) {
	table := newMapTable(20)
	reg := NewRegistry(table, nil)

	id, err := reg.Resolve(Span{HasID: true, EmbeddedID: 3, Content: "old"})
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	assert.Equal(t, 20, table.next)
}

func TestAnnotate_CollisionLeavesTableUntouched(t *testing.T) {
	table := newMapTable(2)
	table.blocks[3] = "occupied"
	reg := NewRegistry(table, nil)

	text := blocks(2)
	out, err := reg.Annotate(text)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIDCollision))

	var ce *CollisionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3, ce.ID)

	assert.Equal(t, text, out.Text)
	assert.Len(t, table.blocks, 1)
	assert.Equal(t, 2, table.next)
}

func TestLookup(t *testing.T) {
	table := newMapTable(2)
	table.blocks[1] = "code"
	reg := NewRegistry(table, nil)

	got, err := reg.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, "code", got)

	_, err = reg.Lookup(42)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.EqualError(t, err, "code block 42 not found")
}
