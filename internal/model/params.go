// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// GENERATION PARAMETERS
// =============================================================================

// Params are the generation settings sent with every request. They are a
// plain value: callers pass a copy to each turn.
type Params struct {
	Model            string   `toml:"model_name" json:"model_name"`
	Temperature      float64  `toml:"temperature" json:"temperature"`
	MaxTokens        int      `toml:"max_tokens" json:"max_tokens"`
	Stream           bool     `toml:"stream" json:"stream"`
	SystemPrompt     string   `toml:"system_prompt" json:"system_prompt"`
	TopP             float64  `toml:"top_p" json:"top_p"`
	PresencePenalty  float64  `toml:"presence_penalty" json:"presence_penalty"`
	FrequencyPenalty float64  `toml:"frequency_penalty" json:"frequency_penalty"`
	Stop             []string `toml:"stop_sequences" json:"stop_sequences"`
}

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// DefaultParams returns the built-in generation settings.
func DefaultParams() Params {
	return Params{
		Model:        "local-model",
		Temperature:  0.7,
		MaxTokens:    500,
		Stream:       true,
		SystemPrompt: DefaultSystemPrompt,
		TopP:         0.95,
		Stop:         []string{},
	}
}

// Validate checks every parameter's range.
func (p Params) Validate() error {
	switch {
	case strings.TrimSpace(p.Model) == "":
		return fmt.Errorf("model_name must not be empty")
	case p.Temperature < 0 || p.Temperature > 2:
		return fmt.Errorf("temperature must be between 0 and 2, got %g", p.Temperature)
	case p.MaxTokens <= 0:
		return fmt.Errorf("max_tokens must be positive, got %d", p.MaxTokens)
	case p.TopP < 0 || p.TopP > 1:
		return fmt.Errorf("top_p must be between 0 and 1, got %g", p.TopP)
	case p.PresencePenalty < -2 || p.PresencePenalty > 2:
		return fmt.Errorf("presence_penalty must be between -2 and 2, got %g", p.PresencePenalty)
	case p.FrequencyPenalty < -2 || p.FrequencyPenalty > 2:
		return fmt.Errorf("frequency_penalty must be between -2 and 2, got %g", p.FrequencyPenalty)
	}
	return nil
}

// paramSetters parse a /set value into the named field.
var paramSetters = map[string]func(p *Params, v string) error{
	"model_name": func(p *Params, v string) error {
		p.Model = v
		return nil
	},
	"temperature": func(p *Params, v string) error {
		return parseFloat(v, &p.Temperature)
	},
	"max_tokens": func(p *Params, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("expected an integer, got %q", v)
		}
		p.MaxTokens = n
		return nil
	},
	"stream": func(p *Params, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		p.Stream = b
		return nil
	},
	"system_prompt": func(p *Params, v string) error {
		p.SystemPrompt = v
		return nil
	},
	"top_p": func(p *Params, v string) error {
		return parseFloat(v, &p.TopP)
	},
	"presence_penalty": func(p *Params, v string) error {
		return parseFloat(v, &p.PresencePenalty)
	},
	"frequency_penalty": func(p *Params, v string) error {
		return parseFloat(v, &p.FrequencyPenalty)
	},
	"stop_sequences": func(p *Params, v string) error {
		stop, err := parseList(v)
		if err != nil {
			return err
		}
		p.Stop = stop
		return nil
	},
}

// paramAliases maps short names accepted by /set to canonical names.
var paramAliases = map[string]string{
	"model": "model_name",
	"temp":  "temperature",
	"stop":  "stop_sequences",
}

// ParamNames returns the canonical parameter names, sorted.
func ParamNames() []string {
	names := make([]string, 0, len(paramSetters))
	for name := range paramSetters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set parses value into the named parameter and validates the result. p is
// left unchanged on error.
func (p *Params) Set(name, value string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := paramAliases[name]; ok {
		name = canonical
	}
	setter, ok := paramSetters[name]
	if !ok {
		return fmt.Errorf("unknown parameter %q (known: %s)", name, strings.Join(ParamNames(), ", "))
	}

	next := *p
	next.Stop = append([]string(nil), p.Stop...)
	if err := setter(&next, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*p = next
	return nil
}

// Get returns the named parameter formatted for display.
func (p Params) Get(name string) (string, bool) {
	switch name {
	case "model_name":
		return p.Model, true
	case "temperature":
		return strconv.FormatFloat(p.Temperature, 'g', -1, 64), true
	case "max_tokens":
		return strconv.Itoa(p.MaxTokens), true
	case "stream":
		return strconv.FormatBool(p.Stream), true
	case "system_prompt":
		return p.SystemPrompt, true
	case "top_p":
		return strconv.FormatFloat(p.TopP, 'g', -1, 64), true
	case "presence_penalty":
		return strconv.FormatFloat(p.PresencePenalty, 'g', -1, 64), true
	case "frequency_penalty":
		return strconv.FormatFloat(p.FrequencyPenalty, 'g', -1, 64), true
	case "stop_sequences":
		data, _ := json.Marshal(p.Stop)
		return string(data), true
	}
	return "", false
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("expected a number, got %q", v)
	}
	*dst = f
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on/off, got %q", v)
}

// parseList accepts a JSON array or a comma-separated list. "none" and ""
// clear the list.
func parseList(v string) ([]string, error) {
	if v == "" || strings.EqualFold(v, "none") {
		return []string{}, nil
	}
	if strings.HasPrefix(v, "[") {
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("invalid JSON list: %w", err)
		}
		return out, nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}
