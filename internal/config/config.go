// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/jeranaias/retrochat/internal/logging"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/stream"
	"github.com/jeranaias/retrochat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete retrochat configuration.
type Config struct {
	// ActiveProvider names the entry of Providers used for new turns.
	ActiveProvider string `toml:"active_provider" json:"active_provider"`

	// Params are the model parameters sent with every request.
	Params model.Params `toml:"params" json:"params"`

	Display DisplayConfig `toml:"display" json:"display"`
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Providers maps a provider name to its endpoint settings.
	Providers map[string]ProviderConfig `toml:"providers" json:"providers"`
}

// DisplayConfig controls how responses are shown.
type DisplayConfig struct {
	// Think is "hide" (default) or "show" for <think> sections.
	Think string `toml:"think" json:"think"`
	// Theme selects the render palette: "dark", "light" or "mono".
	Theme string `toml:"theme" json:"theme"`
	// Markdown re-renders finished replies as markdown.
	Markdown bool `toml:"markdown" json:"markdown"`
	// Highlight enables syntax highlighting of code blocks.
	Highlight bool `toml:"highlight" json:"highlight"`
	// TrimLeading drops whitespace before the first visible character of a reply.
	TrimLeading bool `toml:"trim_leading" json:"trim_leading"`
	// Spinner shows a spinner until the first fragment arrives.
	Spinner bool `toml:"spinner" json:"spinner"`
}

// StorageConfig locates persisted data. Empty paths resolve under ConfigDir.
type StorageConfig struct {
	SessionsDir string `toml:"sessions_dir" json:"sessions_dir"`
	IndexPath   string `toml:"index_path" json:"index_path"`
	// SearchIndex enables the sqlite full text index used by session search.
	SearchIndex bool `toml:"search_index" json:"search_index"`
}

// Provider kinds.
const (
	KindLMStudio   = "lmstudio"
	KindOpenRouter = "openrouter"
	KindOpenAI     = "openai"
	KindOllama     = "ollama"
)

// Kinds lists the supported provider kinds.
var Kinds = []string{KindLMStudio, KindOpenRouter, KindOpenAI, KindOllama}

// ProviderConfig describes one endpoint.
type ProviderConfig struct {
	Kind    string `toml:"kind" json:"kind"`
	BaseURL string `toml:"base_url" json:"base_url"`
	APIKey  string `toml:"api_key,omitempty" json:"api_key,omitempty"`
	// DefaultModel is used when params.model_name is empty.
	DefaultModel      string            `toml:"default_model,omitempty" json:"default_model,omitempty"`
	Headers           map[string]string `toml:"headers,omitempty" json:"headers,omitempty"`
	SiteURL           string            `toml:"site_url,omitempty" json:"site_url,omitempty"`
	SiteName          string            `toml:"site_name,omitempty" json:"site_name,omitempty"`
	TimeoutSecs       int               `toml:"timeout_secs" json:"timeout_secs"`
	StreamTimeoutSecs int               `toml:"stream_timeout_secs" json:"stream_timeout_secs"`
	RequestsPerMinute int               `toml:"requests_per_minute" json:"requests_per_minute"`
	MaxRetries        int               `toml:"max_retries" json:"max_retries"`
}

// Timeout returns TimeoutSecs as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// StreamTimeout returns StreamTimeoutSecs as a duration.
func (p ProviderConfig) StreamTimeout() time.Duration {
	return time.Duration(p.StreamTimeoutSecs) * time.Second
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// DefaultProvider is the provider selected by a fresh configuration.
const DefaultProvider = "lmstudio"

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		ActiveProvider: DefaultProvider,
		Params:         model.DefaultParams(),
		Display: DisplayConfig{
			Think:       stream.ModeHide.String(),
			Theme:       "dark",
			Markdown:    true,
			Highlight:   true,
			TrimLeading: true,
			Spinner:     true,
		},
		Storage: StorageConfig{
			SearchIndex: true,
		},
		Providers: DefaultProviders(),
	}
}

// DefaultProviders returns the built-in provider entries.
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"lmstudio": {
			Kind:              KindLMStudio,
			BaseURL:           "http://localhost:1234/v1",
			TimeoutSecs:       120,
			StreamTimeoutSecs: 60,
		},
		"openrouter": {
			Kind:              KindOpenRouter,
			BaseURL:           "https://openrouter.ai/api/v1",
			DefaultModel:      "openrouter/auto",
			SiteName:          "retrochat",
			TimeoutSecs:       120,
			StreamTimeoutSecs: 60,
			MaxRetries:        2,
		},
		"ollama": {
			Kind:              KindOllama,
			BaseURL:           "http://127.0.0.1:11434",
			DefaultModel:      "llama3.2",
			TimeoutSecs:       120,
			StreamTimeoutSecs: 60,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the retrochat configuration directory:
// %APPDATA%\Retrochat on Windows, $XDG_CONFIG_HOME/retrochat elsewhere
// (defaulting to ~/.config/retrochat).
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Retrochat"), nil
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "retrochat"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "retrochat"), nil
}

// DefaultPath returns the path to the TOML config file.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// SessionsDir returns the configured sessions directory or its default.
func (c *Config) SessionsDir() (string, error) {
	if c.Storage.SessionsDir != "" {
		return expandHome(c.Storage.SessionsDir), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

// IndexPath returns the configured search index path or its default.
func (c *Config) IndexPath() (string, error) {
	if c.Storage.IndexPath != "" {
		return expandHome(c.Storage.IndexPath), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "index.db"), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// chmod is replaced in tests.
var chmod = os.Chmod

// ensureSecurePermissions tightens config files to 0600; they may hold API keys.
func ensureSecurePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	logger *log.Logger
}

// WithLogger sets where Load reports recoverable problems such as a config
// file whose permissions could not be tightened.
func WithLogger(l *log.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = l }
}

// Load reads the configuration at path. An empty path means DefaultPath.
// A missing file yields the defaults. Environment overrides are applied
// before validation.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := decodeFile(cfg, path, logging.OrDiscard(o.logger)); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// decodeFile overlays the TOML file at path onto cfg.
func decodeFile(cfg *Config, path string, logger *log.Logger) error {
	if err := ensureSecurePermissions(path); err != nil {
		logger.Warn("config file may be readable by others", "path", path, "err", err)
	}

	// Decoding into a populated map merges keys; providers listed in the
	// file replace the built-in entry wholesale instead.
	defaults := cfg.Providers
	cfg.Providers = nil

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if !md.IsDefined("providers") {
		cfg.Providers = defaults
	}
	return nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	var buf bytes.Buffer
	buf.WriteString("# retrochat configuration file\n")
	buf.WriteString("# Generated by retrochat - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SetDefaults fills zero-valued fields that must not be empty.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Display.Think == "" {
		c.Display.Think = defaults.Display.Think
	}
	if c.Display.Theme == "" {
		c.Display.Theme = defaults.Display.Theme
	}
	if c.Params.Model == "" {
		c.Params.Model = defaults.Params.Model
	}
	if c.Params.MaxTokens == 0 {
		c.Params.MaxTokens = defaults.Params.MaxTokens
	}
	if c.Params.Stop == nil {
		c.Params.Stop = []string{}
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, p := range c.Providers {
		if p.Kind == "" {
			p.Kind = KindOpenAI
		}
		if p.TimeoutSecs == 0 {
			p.TimeoutSecs = 120
		}
		if p.StreamTimeoutSecs == 0 {
			p.StreamTimeoutSecs = 60
		}
		c.Providers[name] = p
	}
	if c.ActiveProvider == "" && len(c.Providers) > 0 {
		if _, ok := c.Providers[DefaultProvider]; ok {
			c.ActiveProvider = DefaultProvider
		} else {
			c.ActiveProvider = c.ProviderNames()[0]
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors listing
// every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := c.Params.Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "params", Message: err.Error()})
	}

	if _, err := stream.ParseMode(c.Display.Think); err != nil {
		errs = append(errs, ValidationError{Field: "display.think", Message: err.Error()})
	}
	switch c.Display.Theme {
	case "dark", "light", "mono":
	default:
		errs = append(errs, ValidationError{
			Field:   "display.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, mono", c.Display.Theme),
		})
	}

	if c.ActiveProvider != "" {
		if _, ok := c.Providers[c.ActiveProvider]; !ok {
			errs = append(errs, ValidationError{
				Field:   "active_provider",
				Message: fmt.Sprintf("provider '%s' is not configured", c.ActiveProvider),
			})
		}
	}

	for _, name := range c.ProviderNames() {
		for _, e := range c.Providers[name].validate() {
			e.Field = "providers." + name + "." + e.Field
			errs = append(errs, e)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (p ProviderConfig) validate() []ValidationError {
	var errs []ValidationError
	if !slices.Contains(Kinds, p.Kind) {
		errs = append(errs, ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("invalid kind '%s', must be one of: %s", p.Kind, strings.Join(Kinds, ", ")),
		})
	}
	if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{Field: "base_url", Message: fmt.Sprintf("invalid URL '%s'", p.BaseURL)})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{Field: "base_url", Message: "scheme must be http or https"})
	}
	if p.TimeoutSecs < 0 || p.StreamTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "timeout_secs", Message: "timeouts must not be negative"})
	}
	if p.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "requests_per_minute", Message: "must not be negative"})
	}
	if p.MaxRetries < 0 || p.MaxRetries > 10 {
		errs = append(errs, ValidationError{Field: "max_retries", Message: "must be between 0 and 10"})
	}
	return errs
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RETROCHAT_PROVIDER: overrides active_provider
//   - RETROCHAT_MODEL: overrides params.model_name
//   - RETROCHAT_THINK: overrides display.think
//   - RETROCHAT_SESSIONS_DIR: overrides storage.sessions_dir
//   - OPENROUTER_API_KEY: api_key of every openrouter provider lacking one
func (c *Config) ApplyEnvOverrides() {
	if provider := os.Getenv("RETROCHAT_PROVIDER"); provider != "" {
		c.ActiveProvider = provider
	}
	if name := os.Getenv("RETROCHAT_MODEL"); name != "" {
		c.Params.Model = name
	}
	if think := os.Getenv("RETROCHAT_THINK"); think != "" {
		c.Display.Think = strings.ToLower(think)
	}
	if dir := os.Getenv("RETROCHAT_SESSIONS_DIR"); dir != "" {
		c.Storage.SessionsDir = dir
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		for name, p := range c.Providers {
			if p.Kind == KindOpenRouter && p.APIKey == "" {
				p.APIKey = key
				c.Providers[name] = p
			}
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation
// (e.g. "params.temperature", "display.think").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks struct fields by TOML name. Maps are not addressable
// through dot notation; providers are managed with the provider methods.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTOMLName(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct || field.Kind() == reflect.Map {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// fieldByTOMLName finds the field whose toml tag matches name. Dashes are
// accepted for underscores.
func fieldByTOMLName(v reflect.Value, name string) (reflect.Value, bool) {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an any value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := parseBool(strVal)
			if err != nil {
				return err
			}
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				field.Set(reflect.ValueOf(splitList(strVal)))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value '%s'", s)
}

// splitList splits a comma separated list, dropping empty items.
func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Keys returns all settable keys in dot notation.
func Keys() []string {
	var keys []string
	var walk func(prefix string, t reflect.Type)
	walk = func(prefix string, t reflect.Type) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
			if tag == "" || tag == "-" {
				continue
			}
			switch f.Type.Kind() {
			case reflect.Struct:
				walk(prefix+tag+".", f.Type)
			case reflect.Map:
			default:
				keys = append(keys, prefix+tag)
			}
		}
	}
	walk("", reflect.TypeOf(Config{}))
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// ProviderNames returns the configured provider names, sorted.
func (c *Config) ProviderNames() []string {
	return slices.Sorted(maps.Keys(c.Providers))
}

// Active returns the active provider entry.
func (c *Config) Active() (string, ProviderConfig, error) {
	p, ok := c.Providers[c.ActiveProvider]
	if !ok {
		return c.ActiveProvider, ProviderConfig{}, fmt.Errorf("provider '%s' is not configured", c.ActiveProvider)
	}
	return c.ActiveProvider, p, nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Params.Stop = slices.Clone(c.Params.Stop)
	if c.Providers != nil {
		clone.Providers = make(map[string]ProviderConfig, len(c.Providers))
		for name, p := range c.Providers {
			p.Headers = maps.Clone(p.Headers)
			clone.Providers[name] = p
		}
	}
	return &clone
}

// Redacted returns a copy safe to print: API keys and header values that
// look like credentials are masked.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	for name, p := range safe.Providers {
		if p.APIKey != "" {
			p.APIKey = "[REDACTED]"
		}
		for k := range p.Headers {
			if isSecretHeader(k) {
				p.Headers[k] = "[REDACTED]"
			}
		}
		safe.Providers[name] = p
	}
	return safe
}

func isSecretHeader(name string) bool {
	name = strings.ToLower(name)
	return name == "authorization" || strings.Contains(name, "key") || strings.Contains(name, "token")
}

// String returns the redacted configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.Redacted()); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}
