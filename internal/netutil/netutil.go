// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package netutil holds the HTTP plumbing shared by the provider transports:
// request rate limiting, idle-read watchdogs and status handling.
package netutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// RATE LIMITING
// =============================================================================

// NewLimiter returns a limiter allowing perMinute requests per minute with a
// burst of one. perMinute <= 0 disables limiting.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// =============================================================================
// IDLE WATCHDOG
// =============================================================================

// Watchdog cancels a context when no progress is reported for longer than
// its idle duration. Transports Kick it on every received line so a stalled
// stream surfaces as a timeout instead of hanging forever.
type Watchdog struct {
	idle    time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	expired atomic.Bool
}

// NewWatchdog derives a cancellable context from parent. With idle <= 0 the
// watchdog never fires but the context is still cancellable through Stop.
func NewWatchdog(parent context.Context, idle time.Duration) (context.Context, *Watchdog) {
	ctx, cancel := context.WithCancel(parent)
	w := &Watchdog{idle: idle, cancel: cancel}
	if idle > 0 {
		w.timer = time.AfterFunc(idle, func() {
			w.expired.Store(true)
			cancel()
		})
	}
	return ctx, w
}

// Kick restarts the idle countdown.
func (w *Watchdog) Kick() {
	if w.timer != nil && !w.expired.Load() {
		w.timer.Reset(w.idle)
	}
}

// Expired reports whether the watchdog fired.
func (w *Watchdog) Expired() bool {
	return w.expired.Load()
}

// Stop disarms the watchdog and cancels its context.
func (w *Watchdog) Stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.cancel()
}

// =============================================================================
// RESPONSES
// =============================================================================

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// ErrorMessage extracts a human-readable message from a failed response.
// It understands {"error": "..."} and {"error": {"message": "..."}} bodies
// and falls back to the trimmed body or the status text.
func ErrorMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return flat.Error
	}

	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 300 {
		return text
	}
	return resp.Status
}

// SetHeaders copies extra headers onto req. Empty values are skipped.
func SetHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
}

// JoinURL joins a base URL and a path without doubling slashes.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
