// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/jeranaias/retrochat/internal/logging"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/netutil"
)

// Configuration constants.
const (
	// DefaultOpenRouterURL is the base URL for the OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultLMStudioURL is LM Studio's local server address.
	DefaultLMStudioURL = "http://localhost:1234/v1"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 120 * time.Second

	// DefaultStreamTimeout is the longest silence tolerated mid-stream.
	DefaultStreamTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of retries for transient failures
	// before the first byte of a reply.
	DefaultMaxRetries = 2

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig configures a Client.
type ClientConfig struct {
	// Name labels the provider in errors and logs (default: "openai").
	Name string

	// BaseURL is the API root, including the /v1 suffix.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// SiteURL and SiteName become OpenRouter's HTTP-Referer and X-Title.
	SiteURL  string
	SiteName string

	// Headers are added to every request after the built-in ones.
	Headers map[string]string

	Timeout           time.Duration
	StreamTimeout     time.Duration
	MaxRetries        int
	RequestsPerMinute int
	DefaultModel      string

	// Logger receives debug output. Nil discards.
	Logger *log.Logger
}

// =============================================================================
// CLIENT
// =============================================================================

// Client streams completions from an OpenAI-compatible endpoint.
//
// The Client is safe for concurrent use.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewClient creates a client for a generic OpenAI-compatible server.
func NewClient(config ClientConfig) *Client {
	if config.Name == "" {
		config.Name = "openai"
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.StreamTimeout == 0 {
		config.StreamTimeout = DefaultStreamTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	config.APIKey = strings.TrimSpace(config.APIKey)

	return &Client{
		config:     config,
		httpClient: &http.Client{},
		limiter:    netutil.NewLimiter(config.RequestsPerMinute),
		logger:     logging.OrDiscard(config.Logger),
	}
}

// NewOpenRouterClient creates a client preset for OpenRouter.
func NewOpenRouterClient(config ClientConfig) *Client {
	if config.Name == "" {
		config.Name = "openrouter"
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultOpenRouterURL
	}
	if config.SiteName == "" {
		config.SiteName = "retrochat"
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "openrouter/auto"
	}
	return NewClient(config)
}

// NewLMStudioClient creates a client preset for a local LM Studio server.
// LM Studio ignores the model name and needs no key.
func NewLMStudioClient(config ClientConfig) *Client {
	if config.Name == "" {
		config.Name = "lmstudio"
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultLMStudioURL
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "local-model"
	}
	return NewClient(config)
}

// Name implements model.Transport.
func (c *Client) Name() string {
	return c.config.Name
}

// Config returns the client's configuration.
func (c *Client) Config() ClientConfig {
	return c.config
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// setHeaders applies auth, attribution and extra headers.
func (c *Client) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "retrochat")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.SiteURL != "" {
		req.Header.Set("HTTP-Referer", c.config.SiteURL)
	}
	if c.config.SiteName != "" {
		req.Header.Set("X-Title", c.config.SiteName)
	}
	netutil.SetHeaders(req, c.config.Headers)
}

// =============================================================================
// CHAT
// =============================================================================

// StartStream implements model.Transport. Connection failures, 429 and 5xx
// responses are retried with exponential backoff; once a 200 arrives the
// stream is handed to the caller and never retried.
func (c *Client) StartStream(ctx context.Context, req model.ChatRequest) (model.Stream, error) {
	body, err := json.Marshal(newChatRequest(req, c.config.DefaultModel))
	if err != nil {
		return nil, &model.TransportError{Provider: c.Name(), Type: model.ErrTypeDecode, Message: "failed to marshal request", Cause: err}
	}

	var lastErr *model.TransportError
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt - 1)
			c.logger.Debug("retrying chat request", "provider", c.Name(), "attempt", attempt, "delay", delay, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, model.WrapNetError(ctx, c.Name(), "retry aborted", ctx.Err())
			case <-time.After(delay):
			}
		}

		st, err := c.startOnce(ctx, req.Params.Stream, body)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

// startOnce performs a single request attempt.
func (c *Client) startOnce(ctx context.Context, stream bool, body []byte) (model.Stream, *model.TransportError) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.WrapNetError(ctx, c.Name(), "rate limit wait aborted", err)
	}

	idle := c.config.StreamTimeout
	if !stream {
		idle = c.config.Timeout
	}
	streamCtx, watchdog := netutil.NewWatchdog(ctx, idle)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, netutil.JoinURL(c.config.BaseURL, "/chat/completions"), bytes.NewReader(body))
	if err != nil {
		watchdog.Stop()
		return nil, &model.TransportError{Provider: c.Name(), Type: model.ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(httpReq, stream)

	c.logger.Debug("starting chat", "provider", c.Name(), "url", httpReq.URL.String(), "stream", stream)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		watchdog.Stop()
		return nil, classify(streamCtx, watchdog, c.Name(), "chat request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer watchdog.Stop()
		return nil, statusError(c.Name(), resp)
	}

	if !stream {
		defer resp.Body.Close()
		defer watchdog.Stop()
		var result ChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, classify(streamCtx, watchdog, c.Name(), "failed to decode response", err)
		}
		if result.Error != nil && result.Error.Message != "" {
			return nil, &model.TransportError{Provider: c.Name(), Type: model.ErrTypeProvider, Message: result.Error.Message}
		}
		return model.NewTextStream(result.GetContent()), nil
	}

	return newSSEStream(streamCtx, c.Name(), resp.Body, watchdog, c.logger), nil
}

// statusError maps a non-200 response.
func statusError(provider string, resp *http.Response) *model.TransportError {
	te := &model.TransportError{
		Provider: provider,
		Type:     model.ErrTypeStatus,
		Status:   resp.StatusCode,
		Message:  netutil.ErrorMessage(resp),
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		te.Message = "authentication failed: " + te.Message
	case http.StatusPaymentRequired:
		te.Message = "insufficient credits: " + te.Message
	case http.StatusNotFound:
		te.Message = "model not found: " + te.Message
	case http.StatusTooManyRequests:
		te.Message = "rate limited: " + te.Message
	}
	return te
}

// isRetryable reports whether a failed attempt may be repeated.
func isRetryable(err *model.TransportError) bool {
	switch err.Type {
	case model.ErrTypeConnection:
		return true
	case model.ErrTypeStatus:
		return err.Status == http.StatusTooManyRequests || err.Status >= 500
	default:
		return false
	}
}

// calculateBackoff returns the delay before retry attempt+1: 500ms, 1s, 2s...
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// classify maps a request or read error, reporting watchdog expiry as a
// timeout.
func classify(ctx context.Context, w *netutil.Watchdog, provider, msg string, err error) *model.TransportError {
	te := model.WrapNetError(ctx, provider, msg, err)
	if w.Expired() {
		te.Type = model.ErrTypeTimeout
		te.Message = msg + " (no data received in time)"
	}
	return te
}
