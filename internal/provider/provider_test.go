// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/retrochat/internal/cloud"
	"github.com/jeranaias/retrochat/internal/config"
	"github.com/jeranaias/retrochat/internal/ollama"
)

func TestOpen_Kinds(t *testing.T) {
	cfg := config.Default()

	tr, err := Open("lmstudio", cfg.Providers["lmstudio"], nil)
	require.NoError(t, err)
	lm, ok := tr.(*cloud.Client)
	require.True(t, ok)
	assert.Equal(t, "lmstudio", lm.Name())
	assert.Equal(t, "http://localhost:1234/v1", lm.Config().BaseURL)

	p := cfg.Providers["openrouter"]
	p.APIKey = "sk"
	tr, err = Open("router", p, nil)
	require.NoError(t, err)
	or := tr.(*cloud.Client)
	assert.Equal(t, "router", or.Name())
	assert.True(t, or.IsConfigured())
	assert.Equal(t, 2, or.Config().MaxRetries)

	tr, err = Open("ollama", cfg.Providers["ollama"], nil)
	require.NoError(t, err)
	_, ok = tr.(*ollama.Client)
	assert.True(t, ok)

	_, err = Open("x", config.ProviderConfig{Kind: config.KindOpenAI}, nil)
	assert.Error(t, err)
	_, err = Open("x", config.ProviderConfig{Kind: "fax"}, nil)
	assert.Error(t, err)
}

func TestOpenActive(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.SelectProvider("ollama"))
	tr, err := OpenActive(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama", tr.Name())

	cfg.ActiveProvider = "missing"
	_, err = OpenActive(cfg, nil)
	assert.Error(t, err)
}
