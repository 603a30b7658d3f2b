// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates and saves the retrochat configuration.
//
// # Key Types
//
//   - Config: model parameters, display settings, storage paths and providers
//   - ProviderConfig: one endpoint (kind, base URL, key, headers, timeouts)
//   - ValidateErrors: every validation failure found in one pass
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RETROCHAT_*, OPENROUTER_API_KEY)
//   - $XDG_CONFIG_HOME/retrochat/config.toml (%APPDATA%\Retrochat on Windows)
//   - Built-in defaults
//
// There is no package-level instance: callers Load a *Config and pass it on.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	name, provider, err := cfg.Active()
package config
