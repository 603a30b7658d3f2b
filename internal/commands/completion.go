// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"

	"github.com/jeranaias/retrochat/internal/model"
)

// =============================================================================
// COMPLETION
// =============================================================================

// Completion is a single completion candidate.
type Completion struct {
	Value       string
	Display     string
	Description string
	Score       int
}

// Completer handles tab completion for commands and arguments.
type Completer struct {
	registry *Registry

	// Callbacks for dynamic completion, set by the application.
	SessionsFn  func() []string // Returns saved session IDs
	ProvidersFn func() []string // Returns configured provider names
}

// NewCompleter creates a new completer with the given registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns completions for the word being typed at the end of
// input.
func (c *Completer) Complete(input string) []Completion {
	input = strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	parts := splitCommandLine(input)
	trailing := strings.HasSuffix(input, " ")

	// Still typing the command name?
	if len(parts) == 1 && !trailing {
		return c.completeCommands(parts[0])
	}

	cmd := c.registry.Get(parts[0])
	if cmd == nil {
		return nil
	}

	args := parts[1:]
	partial := ""
	if !trailing && len(args) > 0 {
		partial = args[len(args)-1]
		args = args[:len(args)-1]
	}

	defs := cmd.Args
	if len(cmd.Sub) > 0 && len(args) > 0 {
		defs = cmd.Sub[strings.ToLower(args[0])]
		args = args[1:]
	}
	if len(args) >= len(defs) {
		return nil
	}
	return c.completeArg(defs[len(args)], partial)
}

// Line adapts Complete to line editors that replace the whole input line
// with each candidate.
func (c *Completer) Line(line string) []string {
	completions := c.Complete(line)
	if len(completions) == 0 {
		return nil
	}

	prefix := line
	if i := strings.LastIndexAny(line, " \t"); i >= 0 {
		prefix = line[:i+1]
	} else {
		prefix = ""
	}

	out := make([]string, len(completions))
	for i, comp := range completions {
		out[i] = prefix + comp.Value
	}
	return out
}

// =============================================================================
// COMMAND COMPLETION
// =============================================================================

// completeCommands returns completions for command names.
func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		if strings.HasPrefix(cmd.Name, partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Display:     cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
		for _, alias := range cmd.Aliases {
			// Aliases only show up once typed past the slash.
			if len(partial) > 1 && strings.HasPrefix(alias, partial) {
				completions = append(completions, Completion{
					Value:       alias,
					Display:     alias + " -> " + cmd.Name,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10,
				})
			}
		}
	}

	sortCompletions(completions)
	return completions
}

// =============================================================================
// ARGUMENT COMPLETION
// =============================================================================

// completeArg returns completions for a command argument.
func (c *Completer) completeArg(arg ArgDef, partial string) []Completion {
	switch arg.Type {
	case ArgTypeEnum:
		return completeFromList(arg.Values, partial)
	case ArgTypeSession:
		if c.SessionsFn == nil {
			return nil
		}
		return completeFromList(c.SessionsFn(), partial)
	case ArgTypeProvider:
		if c.ProvidersFn == nil {
			return nil
		}
		return completeFromList(c.ProvidersFn(), partial)
	case ArgTypeParam:
		return completeFromList(model.ParamNames(), partial)
	default:
		return nil
	}
}

// completeFromList returns the values that start with partial.
func completeFromList(values []string, partial string) []Completion {
	var completions []Completion
	lower := strings.ToLower(partial)
	for _, v := range values {
		if strings.HasPrefix(strings.ToLower(v), lower) {
			completions = append(completions, Completion{
				Value:   v,
				Display: v,
				Score:   calculateScore(v, partial),
			})
		}
	}
	sortCompletions(completions)
	return completions
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// calculateScore calculates a match score for completion ranking.
// Higher score = better match.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100

	// Exact match
	if value == partial {
		return score + 100
	}

	// Prefix match bonus
	if strings.HasPrefix(value, partial) {
		score += 50
		// Bonus for shorter completions
		score += 20 - len(value)
	}

	// Length penalty
	score -= len(value) / 2

	return score
}

// sortCompletions sorts completions by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.Slice(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}
