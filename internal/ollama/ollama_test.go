// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/retrochat/internal/model"
)

func collect(t *testing.T, st model.Stream) (string, error) {
	t.Helper()
	var sb strings.Builder
	for {
		frag, err := st.Recv()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(frag)
	}
}

func ndjsonServer(t *testing.T, lines []string, check func(*ChatRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if check != nil {
			check(&req)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			fmt.Fprintln(w, line)
			w.(http.Flusher).Flush()
		}
	}))
}

func request(stream bool) model.ChatRequest {
	p := model.DefaultParams()
	p.Model = "llama3.2"
	p.Stream = stream
	return model.BuildRequest(p, []model.Message{model.NewUserMessage("hi")})
}

func TestStartStream_Fragments(t *testing.T) {
	srv := ndjsonServer(t, []string{
		`{"message":{"role":"assistant","content":"Hel"},"done":false}`,
		`not json at all`,
		``,
		`{"message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true,"eval_count":2}`,
	}, func(req *ChatRequest) {
		if !req.Stream || req.Model != "llama3.2" {
			t.Errorf("request = %+v", req)
		}
		if req.Options == nil || req.Options.NumPredict != 500 || req.Options.Temperature != 0.7 {
			t.Errorf("options = %+v", req.Options)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
	})
	defer srv.Close()

	client := NewClient(&ClientConfig{BaseURL: srv.URL})
	st, err := client.StartStream(context.Background(), request(true))
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer st.Close()

	got, err := collect(t, st)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if got != "Hello" {
		t.Errorf("content = %q, want %q", got, "Hello")
	}
	if sr := st.(*StreamReader); sr.EvalCount != 2 {
		t.Errorf("EvalCount = %d", sr.EvalCount)
	}
}

func TestStartStream_ErrorLineKeepsPartial(t *testing.T) {
	srv := ndjsonServer(t, []string{
		`{"message":{"content":"partial "},"done":false}`,
		`{"error":"model crashed"}`,
	}, nil)
	defer srv.Close()

	st, err := NewClient(&ClientConfig{BaseURL: srv.URL}).StartStream(context.Background(), request(true))
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer st.Close()

	got, err := collect(t, st)
	if got != "partial " {
		t.Errorf("partial = %q", got)
	}
	var te *model.TransportError
	if !errors.As(err, &te) || te.Type != model.ErrTypeProvider || te.Message != "model crashed" {
		t.Errorf("err = %v", err)
	}
}

func TestStartStream_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model 'nope' not found"}`)
	}))
	defer srv.Close()

	_, err := NewClient(&ClientConfig{BaseURL: srv.URL}).StartStream(context.Background(), request(true))
	var te *model.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Status != http.StatusNotFound || !strings.Contains(te.Message, "not found") {
		t.Errorf("err = %+v", te)
	}
}

func TestStartStream_NonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("expected stream=false")
		}
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"all at once"},"done":true}`)
	}))
	defer srv.Close()

	st, err := NewClient(&ClientConfig{BaseURL: srv.URL}).StartStream(context.Background(), request(false))
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	got, err := collect(t, st)
	if err != nil || got != "all at once" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestStartStream_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"Hello "},"done":false}`)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(&ClientConfig{BaseURL: srv.URL, StreamTimeout: 100 * time.Millisecond})
	st, err := client.StartStream(context.Background(), request(true))
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer st.Close()

	got, err := collect(t, st)
	if got != "Hello " {
		t.Errorf("partial = %q", got)
	}
	if !model.IsTimeout(err) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestStartStream_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"x"},"done":false}`)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	st, err := NewClient(&ClientConfig{BaseURL: srv.URL}).StartStream(ctx, request(true))
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer st.Close()

	if frag, err := st.Recv(); err != nil || frag != "x" {
		t.Fatalf("first Recv = %q, %v", frag, err)
	}
	cancel()

	_, err = st.Recv()
	if !errors.Is(err, model.ErrCanceled) {
		t.Errorf("expected canceled, got %v", err)
	}
}

func TestCheckRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Ollama is running")
	}))
	if err := NewClient(&ClientConfig{BaseURL: srv.URL}).CheckRunning(context.Background()); err != nil {
		t.Errorf("CheckRunning: %v", err)
	}
	srv.Close()

	if err := NewClient(&ClientConfig{BaseURL: srv.URL}).CheckRunning(context.Background()); err == nil {
		t.Error("expected error for closed server")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(nil)
	cfg := c.Config()
	if cfg.BaseURL != "http://127.0.0.1:11434" || cfg.StreamTimeout != 60*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if c.Name() != "ollama" {
		t.Errorf("Name = %q", c.Name())
	}
}
