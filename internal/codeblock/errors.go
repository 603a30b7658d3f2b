// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package codeblock

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound matches any NotFoundError via errors.Is.
	ErrNotFound = errors.New("code block not found")

	// ErrIDCollision matches any CollisionError via errors.Is.
	ErrIDCollision = errors.New("code block id collision")
)

// NotFoundError reports a lookup of an ID the session never assigned.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("code block %d not found", e.ID)
}

// Is implements errors.Is support.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CollisionError reports that the next ID to allocate was already in use,
// meaning the session's counter fell behind its registered blocks.
type CollisionError struct {
	ID int
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("code block id %d already assigned (counter out of sync)", e.ID)
}

// Is implements errors.Is support.
func (e *CollisionError) Is(target error) bool {
	return target == ErrIDCollision
}
