// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Handler executes a command with its parsed arguments.
type Handler func(env *Env, args []string) error

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/set <param> <value>")
	Usage string

	// Args defines the expected arguments
	Args []ArgDef

	// Sub defines the arguments that follow each subcommand, keyed by the
	// first argument's value.
	Sub map[string][]ArgDef

	Handler Handler

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString   ArgType = iota // Free-form string
	ArgTypeEnum                    // One of Values
	ArgTypeSession                 // Saved session ID
	ArgTypeProvider                // Configured provider name
	ArgTypeParam                   // Model parameter name
	ArgTypeNumber                  // Code block ID
)

// ErrExit is returned by the quit command.
var ErrExit = errors.New("exit requested")

// UsageError reports a command invoked with the wrong arguments.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Usage
}

func usage(cmd string) error {
	return &UsageError{Usage: cmd}
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias, ignoring case.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns visible commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// categoryOrder is the order categories appear in help.
var categoryOrder = []string{"Conversation", "Sessions", "Model", "Providers", "General"}

// =============================================================================
// EXECUTION
// =============================================================================

// Execute parses input and runs the matching command. It returns ErrExit
// for the quit command.
func (r *Registry) Execute(env *Env, input string) error {
	result := NewParser(r).Parse(input)
	if !result.IsCommand {
		return fmt.Errorf("not a command: %q", input)
	}
	if result.Command == nil {
		msg := fmt.Sprintf("unknown command: %s", result.CommandName)
		if s := r.suggest(result.CommandName); s != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", s)
		}
		return errors.New(msg + ". Type /help for available commands")
	}
	if err := ValidateArgs(result.Command, result.Args); err != nil {
		return err
	}

	env.Logger.Debug("running command", "command", result.Command.Name, "args", len(result.Args))
	return result.Command.Handler(env, result.Args)
}

// suggest returns the best visible command that name is a prefix of.
func (r *Registry) suggest(name string) string {
	name = strings.ToLower(name)
	if len(name) < 2 {
		return ""
	}
	best, bestScore := "", 0
	for _, cmd := range r.All() {
		if cmd.Hidden || !strings.HasPrefix(cmd.Name, name) {
			continue
		}
		if score := calculateScore(cmd.Name, name); best == "" || score > bestScore {
			best, bestScore = cmd.Name, score
		}
	}
	return best
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Usage:       "/help [command]",
		Args:        []ArgDef{{Name: "command", Description: "Command to describe"}},
		Category:    "General",
		Handler:     r.handleHelp,
	})

	r.Register(&Command{
		Name:        "/info",
		Description: "Show provider, model and session details",
		Usage:       "/info",
		Category:    "General",
		Handler:     handleInfo,
	})

	r.Register(&Command{
		Name:        "/clear",
		Aliases:     []string{"/cls"},
		Description: "Clear the screen",
		Usage:       "/clear",
		Category:    "General",
		Handler:     handleClear,
	})

	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/exit", "/q"},
		Description: "Exit retrochat",
		Usage:       "/quit",
		Category:    "General",
		Handler:     handleQuit,
	})

	// Model parameters
	r.Register(&Command{
		Name:        "/set",
		Description: "Set a model parameter",
		Usage:       "/set <param> <value>",
		Args: []ArgDef{
			{Name: "param", Required: true, Type: ArgTypeParam, Description: "Parameter name"},
			{Name: "value", Required: true, Description: "New value"},
		},
		Category: "Model",
		Handler:  handleSet,
	})

	r.Register(&Command{
		Name:        "/params",
		Description: "Show model parameters",
		Usage:       "/params",
		Category:    "Model",
		Handler:     handleParams,
	})

	r.Register(&Command{
		Name:        "/system",
		Description: "Set or clear the system prompt",
		Usage:       "/system <prompt>|clear",
		Args:        []ArgDef{{Name: "prompt", Required: true, Description: "System prompt, or clear"}},
		Category:    "Model",
		Handler:     handleSystem,
	})

	r.Register(&Command{
		Name:        "/stream",
		Description: "Turn streaming on or off",
		Usage:       "/stream on|off",
		Args: []ArgDef{{
			Name: "mode", Required: true, Type: ArgTypeEnum,
			Values: []string{"on", "off", "true", "false"},
		}},
		Category: "Model",
		Handler:  handleStream,
	})

	r.Register(&Command{
		Name:        "/think",
		Description: "Show or hide <think> sections",
		Usage:       "/think show|hide",
		Args: []ArgDef{{
			Name: "mode", Required: true, Type: ArgTypeEnum,
			Values: []string{"show", "hide"},
		}},
		Category: "Model",
		Handler:  handleThink,
	})

	// Conversation
	r.Register(&Command{
		Name:        "/history",
		Description: "Show the conversation history",
		Usage:       "/history [n]",
		Args:        []ArgDef{{Name: "n", Type: ArgTypeNumber, Description: "Number of recent messages"}},
		Category:    "Conversation",
		Handler:     handleHistory,
	})

	r.Register(&Command{
		Name:        "/copy",
		Description: "Copy a code block to the clipboard",
		Usage:       "/copy <CodeID>",
		Args:        []ArgDef{{Name: "id", Required: true, Type: ArgTypeNumber, Description: "Code block ID"}},
		Category:    "Conversation",
		Handler:     handleCopy,
	})

	// Sessions
	r.Register(&Command{
		Name:        "/chat",
		Description: "Manage chat sessions",
		Usage:       "/chat new|load|list|delete|rename|current|reset|export|search",
		Args: []ArgDef{{
			Name: "action", Required: true, Type: ArgTypeEnum,
			Values: []string{"new", "load", "list", "delete", "rename", "current", "reset", "export", "search"},
		}},
		Sub: map[string][]ArgDef{
			"new":    {{Name: "name", Description: "Session name"}},
			"load":   {{Name: "id", Type: ArgTypeSession, Description: "Session ID"}},
			"delete": {{Name: "id", Required: true, Type: ArgTypeSession, Description: "Session ID"}},
			"rename": {{Name: "name", Required: true, Description: "New name"}},
			"export": {
				{Name: "format", Required: true, Type: ArgTypeEnum, Values: []string{"markdown", "json", "yaml"}},
				{Name: "path", Description: "Output file"},
			},
			"search": {{Name: "query", Required: true, Description: "Search terms"}},
		},
		Category: "Sessions",
		Handler:  handleChat,
	})

	// Providers
	r.Register(&Command{
		Name:        "/provider",
		Description: "Manage API providers",
		Usage:       "/provider list|select|add|edit|delete|set-header",
		Args: []ArgDef{{
			Name: "action", Required: true, Type: ArgTypeEnum,
			Values: []string{"list", "select", "add", "edit", "delete", "set-header"},
		}},
		Sub: map[string][]ArgDef{
			"select": {{Name: "name", Required: true, Type: ArgTypeProvider}},
			"add": {
				{Name: "name", Required: true},
				{Name: "kind", Required: true, Type: ArgTypeEnum, Values: []string{"lmstudio", "openrouter", "openai", "ollama"}},
				{Name: "url", Description: "Base URL"},
			},
			"edit": {
				{Name: "name", Required: true, Type: ArgTypeProvider},
				{Name: "field", Required: true, Type: ArgTypeEnum, Values: providerFields},
				{Name: "value", Required: true},
			},
			"delete": {{Name: "name", Required: true, Type: ArgTypeProvider}},
			"set-header": {
				{Name: "name", Required: true, Type: ArgTypeProvider},
				{Name: "header", Required: true},
				{Name: "value", Description: "Empty removes the header"},
			},
		},
		Category: "Providers",
		Handler:  handleProvider,
	})
}

// providerFields are the provider settings /provider edit accepts.
var providerFields = []string{
	"kind", "base_url", "api_key", "default_model", "site_url", "site_name",
	"timeout_secs", "stream_timeout_secs", "requests_per_minute", "max_retries",
}
