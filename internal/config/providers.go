// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// =============================================================================
// PROVIDER MANAGEMENT
// =============================================================================

// ErrProviderNotFound is returned for operations on an unknown provider.
var ErrProviderNotFound = errors.New("provider not found")

var providerNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// AddProvider registers a new provider. OpenAI-style base URLs get a /v1
// suffix when they lack one.
func (c *Config) AddProvider(name, kind, baseURL string) error {
	if !providerNamePattern.MatchString(name) {
		return fmt.Errorf("invalid provider name '%s'", name)
	}
	if _, exists := c.Providers[name]; exists {
		return fmt.Errorf("provider '%s' already exists", name)
	}

	p := ProviderConfig{
		Kind:              strings.ToLower(kind),
		BaseURL:           NormalizeBaseURL(strings.ToLower(kind), baseURL),
		TimeoutSecs:       120,
		StreamTimeoutSecs: 60,
	}
	if errs := p.validate(); len(errs) > 0 {
		return ValidateErrors(errs)
	}

	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	c.Providers[name] = p
	return nil
}

// NormalizeBaseURL trims trailing slashes and, for every kind but ollama,
// ensures the URL ends in /v1.
func NormalizeBaseURL(kind, baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if kind == KindOllama || baseURL == "" {
		return baseURL
	}
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	return baseURL
}

// DeleteProvider removes a provider. Deleting the active provider selects
// another one, if any remain.
func (c *Config) DeleteProvider(name string) error {
	if _, ok := c.Providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	delete(c.Providers, name)
	if c.ActiveProvider == name {
		c.ActiveProvider = ""
		if names := c.ProviderNames(); len(names) > 0 {
			c.ActiveProvider = names[0]
		}
	}
	return nil
}

// SelectProvider makes name the active provider.
func (c *Config) SelectProvider(name string) error {
	if _, ok := c.Providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	c.ActiveProvider = name
	return nil
}

// SetProviderHeader sets an extra request header. An empty value removes it.
func (c *Config) SetProviderHeader(name, key, value string) error {
	p, ok := c.Providers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("header name must not be empty")
	}
	if value == "" {
		delete(p.Headers, key)
	} else {
		if p.Headers == nil {
			p.Headers = map[string]string{}
		}
		p.Headers[key] = value
	}
	c.Providers[name] = p
	return nil
}

// EditProvider sets one field of a provider by its TOML name
// (e.g. "api_key", "base_url", "timeout_secs"). The change is rejected if
// the result fails validation.
func (c *Config) EditProvider(name, field, value string) error {
	p, ok := c.Providers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	if field == "headers" {
		return errors.New("use set-header to change headers")
	}

	fv, ok := fieldByTOMLName(reflect.ValueOf(&p).Elem(), field)
	if !ok {
		return fmt.Errorf("unknown provider field: %s", field)
	}
	if err := setFieldValue(fv, value); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if field == "base_url" || field == "kind" {
		p.BaseURL = NormalizeBaseURL(p.Kind, p.BaseURL)
	}
	if errs := p.validate(); len(errs) > 0 {
		return ValidateErrors(errs)
	}
	c.Providers[name] = p
	return nil
}
