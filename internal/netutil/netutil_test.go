// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package netutil

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestNewLimiter(t *testing.T) {
	assert.Equal(t, rate.Inf, NewLimiter(0).Limit())

	l := NewLimiter(60)
	assert.InDelta(t, 1.0, float64(l.Limit()), 0.0001)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "burst of one")
}

func TestWatchdog_Fires(t *testing.T) {
	ctx, w := NewWatchdog(context.Background(), 20*time.Millisecond)
	defer w.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired")
	}
	assert.True(t, w.Expired())
}

func TestWatchdog_KickKeepsAlive(t *testing.T) {
	ctx, w := NewWatchdog(context.Background(), 200*time.Millisecond)
	defer w.Stop()

	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		w.Kick()
	}
	assert.NoError(t, ctx.Err())
	assert.False(t, w.Expired())
}

func TestWatchdog_StopCancelsWithoutExpiry(t *testing.T) {
	ctx, w := NewWatchdog(context.Background(), 0)
	w.Kick()
	w.Stop()
	assert.Error(t, ctx.Err())
	assert.False(t, w.Expired())
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "model not loaded", ErrorMessage(response(404, `{"error":"model not loaded"}`)))
	assert.Equal(t, "No auth", ErrorMessage(response(401, `{"error":{"message":"No auth","code":401}}`)))
	assert.Equal(t, "bad gateway text", ErrorMessage(response(502, "bad gateway text\n")))
	assert.Equal(t, "Internal Server Error", ErrorMessage(response(500, "")))
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://h:1/v1/chat/completions", JoinURL("http://h:1/v1/", "/chat/completions"))
	assert.Equal(t, "http://h/api/chat", JoinURL("http://h", "api/chat"))
}

func TestSetHeaders(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://x", nil)
	SetHeaders(req, map[string]string{"X-Title": "retrochat", "Empty": ""})
	assert.Equal(t, "retrochat", req.Header.Get("X-Title"))
	assert.Empty(t, req.Header.Values("Empty"))
}
