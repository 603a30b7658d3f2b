// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/jeranaias/retrochat/internal/logging"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/netutil"
)

// ProviderName identifies this transport in errors and logs.
const ProviderName = "ollama"

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	// Explicit IPv4 avoids localhost resolving to ::1 on Windows.
	BaseURL string

	// Timeout bounds non-streaming requests (default: 120s)
	Timeout time.Duration

	// StreamTimeout is the longest silence tolerated between stream lines
	// (default: 60s). Model load time counts against the first line.
	StreamTimeout time.Duration

	// DefaultModel is used when the request names none.
	DefaultModel string

	// RequestsPerMinute limits request starts (0 = unlimited).
	RequestsPerMinute int

	// Headers are added to every request.
	Headers map[string]string

	// Logger receives debug output. Nil discards.
	Logger *log.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:       "http://127.0.0.1:11434",
		Timeout:       120 * time.Second,
		StreamTimeout: 60 * time.Second,
		DefaultModel:  "llama3.2",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client streams chat completions from Ollama's /api/chat endpoint, which
// answers with newline-delimited JSON objects.
//
// The Client is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewClient creates a client, filling zero config values with defaults.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.StreamTimeout == 0 {
		config.StreamTimeout = defaults.StreamTimeout
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaults.DefaultModel
	}

	return &Client{
		config: config,
		// No client-wide timeout: it would cut long streams. Streams are
		// bounded by the idle watchdog, plain requests by a context deadline.
		httpClient: &http.Client{},
		limiter:    netutil.NewLimiter(config.RequestsPerMinute),
		logger:     logging.OrDiscard(config.Logger),
	}
}

// Name implements model.Transport.
func (c *Client) Name() string {
	return ProviderName
}

// Config returns the client's configuration.
func (c *Client) Config() ClientConfig {
	return *c.config
}

// CheckRunning verifies that Ollama is reachable.
func (c *Client) CheckRunning(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &model.TransportError{Provider: ProviderName, Type: model.ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.WrapNetError(ctx, ProviderName, "Ollama is not running", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &model.TransportError{Provider: ProviderName, Type: model.ErrTypeStatus, Status: resp.StatusCode, Message: "unexpected status from Ollama"}
	}
	return nil
}

// =============================================================================
// CHAT
// =============================================================================

// StartStream implements model.Transport.
func (c *Client) StartStream(ctx context.Context, req model.ChatRequest) (model.Stream, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.WrapNetError(ctx, ProviderName, "rate limit wait aborted", err)
	}

	body, err := json.Marshal(newChatRequest(req, c.config.DefaultModel))
	if err != nil {
		return nil, &model.TransportError{Provider: ProviderName, Type: model.ErrTypeDecode, Message: "failed to marshal request", Cause: err}
	}

	idle := c.config.StreamTimeout
	if !req.Params.Stream {
		idle = c.config.Timeout
	}
	streamCtx, watchdog := netutil.NewWatchdog(ctx, idle)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, netutil.JoinURL(c.config.BaseURL, "/api/chat"), bytes.NewReader(body))
	if err != nil {
		watchdog.Stop()
		return nil, &model.TransportError{Provider: ProviderName, Type: model.ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	netutil.SetHeaders(httpReq, c.config.Headers)

	c.logger.Debug("starting chat", "provider", ProviderName, "model", req.Params.Model, "messages", len(req.Messages), "stream", req.Params.Stream)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		watchdog.Stop()
		return nil, classify(streamCtx, watchdog, "chat request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer watchdog.Stop()
		te := &model.TransportError{Provider: ProviderName, Type: model.ErrTypeStatus, Status: resp.StatusCode, Message: netutil.ErrorMessage(resp)}
		if resp.StatusCode == http.StatusNotFound {
			te.Message = "model not found: " + te.Message
		}
		return nil, te
	}

	if !req.Params.Stream {
		defer resp.Body.Close()
		defer watchdog.Stop()
		var result ChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, classify(streamCtx, watchdog, "failed to decode response", err)
		}
		if result.Error != "" {
			return nil, &model.TransportError{Provider: ProviderName, Type: model.ErrTypeProvider, Message: result.Error}
		}
		return model.NewTextStream(result.Message.Content), nil
	}

	return newStreamReader(streamCtx, resp.Body, watchdog, c.logger), nil
}

// classify maps a request or read error, reporting watchdog expiry as a
// timeout.
func classify(ctx context.Context, w *netutil.Watchdog, msg string, err error) *model.TransportError {
	te := model.WrapNetError(ctx, ProviderName, msg, err)
	if w.Expired() {
		te.Type = model.ErrTypeTimeout
		te.Message = msg + " (no data received in time)"
	}
	return te
}
