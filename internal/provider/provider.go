// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider turns a configured provider entry into a model.Transport.
package provider

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/retrochat/internal/cloud"
	"github.com/jeranaias/retrochat/internal/config"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/ollama"
)

// Open builds the transport for one provider entry. The name labels the
// transport in errors and logs.
func Open(name string, p config.ProviderConfig, logger *log.Logger) (model.Transport, error) {
	if logger != nil {
		logger = logger.With("provider", name)
	}

	cc := cloud.ClientConfig{
		Name:              name,
		BaseURL:           p.BaseURL,
		APIKey:            p.APIKey,
		SiteURL:           p.SiteURL,
		SiteName:          p.SiteName,
		Headers:           p.Headers,
		Timeout:           p.Timeout(),
		StreamTimeout:     p.StreamTimeout(),
		MaxRetries:        p.MaxRetries,
		RequestsPerMinute: p.RequestsPerMinute,
		DefaultModel:      p.DefaultModel,
		Logger:            logger,
	}

	switch p.Kind {
	case config.KindLMStudio:
		return cloud.NewLMStudioClient(cc), nil
	case config.KindOpenRouter:
		return cloud.NewOpenRouterClient(cc), nil
	case config.KindOpenAI:
		if p.BaseURL == "" {
			return nil, fmt.Errorf("provider %s: base_url is required", name)
		}
		return cloud.NewClient(cc), nil
	case config.KindOllama:
		return ollama.NewClient(&ollama.ClientConfig{
			BaseURL:           p.BaseURL,
			Timeout:           p.Timeout(),
			StreamTimeout:     p.StreamTimeout(),
			DefaultModel:      p.DefaultModel,
			RequestsPerMinute: p.RequestsPerMinute,
			Headers:           p.Headers,
			Logger:            logger,
		}), nil
	default:
		return nil, fmt.Errorf("provider %s: unsupported kind %q", name, p.Kind)
	}
}

// OpenActive opens the configuration's active provider.
func OpenActive(cfg *config.Config, logger *log.Logger) (model.Transport, error) {
	name, p, err := cfg.Active()
	if err != nil {
		return nil, err
	}
	return Open(name, p, logger)
}
