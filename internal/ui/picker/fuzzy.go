// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package picker

import (
	"strings"
	"unicode"
)

// fuzzyMatch reports whether every rune of query appears in target in
// order (case-insensitive) and scores the match; higher is better.
// Consecutive runes, word starts and the start of target score extra.
func fuzzyMatch(query, target string) (score int, matched bool) {
	if query == "" {
		return 0, true
	}

	q := []rune(strings.ToLower(query))
	tr := []rune(strings.ToLower(target))
	if len(q) > len(tr) {
		return 0, false
	}

	qi, last := 0, -1
	for ti := 0; ti < len(tr) && qi < len(q); ti++ {
		if tr[ti] != q[qi] {
			continue
		}
		s := 1
		if last == ti-1 {
			s += 5
		}
		if ti == 0 {
			s += 10
		}
		if isWordStart(tr, ti) {
			s += 7
		}
		score += s
		last = ti
		qi++
	}

	if qi != len(q) {
		return 0, false
	}
	// Shorter targets win ties.
	return score - len(tr)/4, true
}

// isWordStart reports whether pos begins a word.
func isWordStart(runes []rune, pos int) bool {
	if pos == 0 {
		return true
	}
	prev := runes[pos-1]
	return prev == ' ' || prev == '-' || prev == '_' || prev == '/' || unicode.IsPunct(prev)
}
