// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
	"unicode"
)

// =============================================================================
// PARSE RESULT
// =============================================================================

// ParseResult contains the result of parsing user input.
type ParseResult struct {
	// IsCommand is true if the input starts with /
	IsCommand bool

	// Command is the matched command (nil if not found)
	Command *Command

	// CommandName is the lowercased command name (e.g., "/help")
	CommandName string

	// Args are the parsed arguments
	Args []string

	// RawInput is the original input string
	RawInput string

	// RawArgs is the unparsed arguments portion
	RawArgs string
}

// =============================================================================
// PARSER
// =============================================================================

// Parser handles parsing of slash commands and their arguments.
type Parser struct {
	registry *Registry
}

// NewParser creates a new parser with the given registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse parses user input. IsCommand is false if the input doesn't start
// with /.
func (p *Parser) Parse(input string) ParseResult {
	input = strings.TrimSpace(input)
	result := ParseResult{RawInput: input}
	if !strings.HasPrefix(input, "/") {
		return result
	}
	result.IsCommand = true

	name, rest := input, ""
	if end := strings.IndexFunc(input, unicode.IsSpace); end >= 0 {
		name, rest = input[:end], strings.TrimSpace(input[end:])
	}
	result.CommandName = strings.ToLower(name)
	result.RawArgs = rest
	result.Args = splitCommandLine(rest)
	result.Command = p.registry.Get(result.CommandName)
	return result
}

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

// splitCommandLine splits a command line into tokens, respecting quotes.
// Supports both single and double quotes for arguments with spaces. An
// unterminated quote runs to the end of the line.
func splitCommandLine(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingle, inDouble, inToken bool

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			inToken = true

		case r == '"' && !inSingle:
			inDouble = !inDouble
			inToken = true

		case r == '\\' && i+1 < len(runes) && (inDouble || inSingle):
			next := runes[i+1]
			if next == '"' || next == '\'' || next == '\\' {
				current.WriteRune(next)
				i++
			} else {
				current.WriteRune(r)
			}

		case unicode.IsSpace(r) && !inSingle && !inDouble:
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}

		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// IsCommand returns true if the input appears to be a command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// ValidateArgs validates arguments against a command's argument definitions,
// including the arguments of a selected subcommand.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}
	if err := validateDefs(cmd.Name, cmd.Args, args); err != nil {
		return err
	}
	if len(cmd.Sub) == 0 || len(args) == 0 {
		return nil
	}
	sub := strings.ToLower(args[0])
	return validateDefs(cmd.Name+" "+sub, cmd.Sub[sub], args[1:])
}

func validateDefs(name string, defs []ArgDef, args []string) error {
	for i, def := range defs {
		if def.Required && i >= len(args) {
			return &ValidationError{
				Command:  name,
				Arg:      def.Name,
				Message:  "required argument missing",
				Expected: def.Description,
			}
		}
		if i >= len(args) {
			continue
		}

		switch def.Type {
		case ArgTypeEnum:
			if len(def.Values) > 0 && !containsFold(def.Values, args[i]) {
				return &ValidationError{
					Command:  name,
					Arg:      def.Name,
					Message:  "invalid value",
					Got:      args[i],
					Expected: strings.Join(def.Values, ", "),
				}
			}
		case ArgTypeNumber:
			if !isDigits(args[i]) {
				return &ValidationError{
					Command:  name,
					Arg:      def.Name,
					Message:  "invalid value",
					Got:      args[i],
					Expected: "a positive number",
				}
			}
		}
	}
	return nil
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// isDigits reports whether s is a non-empty run of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError represents an argument validation error.
type ValidationError struct {
	Command  string
	Arg      string
	Message  string
	Got      string
	Expected string
}

func (e *ValidationError) Error() string {
	msg := e.Command + ": " + e.Message
	if e.Arg != "" {
		msg += " for argument '" + e.Arg + "'"
	}
	if e.Got != "" {
		msg += " (got: " + e.Got + ")"
	}
	if e.Expected != "" {
		msg += ", expected: " + e.Expected
	}
	return msg
}
