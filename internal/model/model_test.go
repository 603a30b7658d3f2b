// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestRoleDisplayName(t *testing.T) {
	tests := map[Role]string{
		RoleUser:      "You",
		RoleAssistant: "Assistant",
		RoleSystem:    "System",
		"tool":        "Tool",
		"":            "Unknown",
	}
	for role, want := range tests {
		if got := role.DisplayName(); got != want {
			t.Errorf("%q.DisplayName() = %q, want %q", role, got, want)
		}
	}
}

func TestDefaultParamsValid(t *testing.T) {
	p := DefaultParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if p.Temperature != 0.7 || p.MaxTokens != 500 || p.TopP != 0.95 {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestParamsSet(t *testing.T) {
	p := DefaultParams()

	if err := p.Set("temperature", "1.2"); err != nil {
		t.Fatalf("Set temperature: %v", err)
	}
	if p.Temperature != 1.2 {
		t.Errorf("Temperature = %v", p.Temperature)
	}

	if err := p.Set("temp", "0.1"); err != nil || p.Temperature != 0.1 {
		t.Errorf("alias temp failed: %v, %v", err, p.Temperature)
	}

	if err := p.Set("stream", "off"); err != nil || p.Stream {
		t.Errorf("Set stream off: %v, %v", err, p.Stream)
	}

	if err := p.Set("stop_sequences", `["\nUser:", "END"]`); err != nil {
		t.Fatalf("Set stop JSON: %v", err)
	}
	if len(p.Stop) != 2 || p.Stop[0] != "\nUser:" {
		t.Errorf("Stop = %q", p.Stop)
	}

	if err := p.Set("stop", "a, b"); err != nil || len(p.Stop) != 2 || p.Stop[1] != "b" {
		t.Errorf("Set stop CSV: %v, %q", err, p.Stop)
	}

	if err := p.Set("model", "qwen3:8b"); err != nil || p.Model != "qwen3:8b" {
		t.Errorf("Set model: %v, %q", err, p.Model)
	}
}

func TestParamsSet_RejectsAndKeepsValue(t *testing.T) {
	p := DefaultParams()

	for _, tc := range []struct{ name, value string }{
		{"temperature", "hot"},
		{"temperature", "3"},
		{"max_tokens", "0"},
		{"top_p", "1.5"},
		{"presence_penalty", "-5"},
		{"stream", "maybe"},
		{"nonsense", "1"},
	} {
		before := p
		if err := p.Set(tc.name, tc.value); err == nil {
			t.Errorf("Set(%q, %q) succeeded, want error", tc.name, tc.value)
		}
		if p.Temperature != before.Temperature || p.MaxTokens != before.MaxTokens || p.TopP != before.TopP {
			t.Errorf("Set(%q, %q) modified params on error", tc.name, tc.value)
		}
	}
}

func TestParamsGet(t *testing.T) {
	p := DefaultParams()
	for _, name := range ParamNames() {
		if _, ok := p.Get(name); !ok {
			t.Errorf("Get(%q) not supported", name)
		}
	}
	if v, _ := p.Get("max_tokens"); v != "500" {
		t.Errorf("max_tokens = %q", v)
	}
	if _, ok := p.Get("bogus"); ok {
		t.Error("Get(bogus) should fail")
	}
}

func TestBuildRequest(t *testing.T) {
	history := []Message{NewUserMessage("hi")}

	req := BuildRequest(DefaultParams(), history)
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem {
		t.Fatalf("messages = %+v", req.Messages)
	}

	p := DefaultParams()
	p.SystemPrompt = ""
	req = BuildRequest(p, history)
	if len(req.Messages) != 1 || req.Messages[0].Role != RoleUser {
		t.Errorf("messages without system prompt = %+v", req.Messages)
	}
}

func TestTextStream(t *testing.T) {
	st := NewTextStream("whole reply")
	frag, err := st.Recv()
	if err != nil || frag != "whole reply" {
		t.Fatalf("Recv = %q, %v", frag, err)
	}
	if _, err := st.Recv(); err != io.EOF {
		t.Errorf("second Recv err = %v, want io.EOF", err)
	}

	empty := NewTextStream("")
	if _, err := empty.Recv(); err != io.EOF {
		t.Errorf("empty Recv err = %v, want io.EOF", err)
	}
}

func TestTransportError(t *testing.T) {
	err := &TransportError{Provider: "ollama", Type: ErrTypeStatus, Status: 500, Message: "chat failed"}
	if got := err.Error(); got != "ollama: chat failed (HTTP 500)" {
		t.Errorf("Error() = %q", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	wrapped := WrapNetError(ctx, "lmstudio", "read failed", context.DeadlineExceeded)
	if !IsTimeout(wrapped) {
		t.Errorf("expected timeout classification, got %v", wrapped.Type)
	}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("cause should unwrap to DeadlineExceeded")
	}

	canceled, stop := context.WithCancel(context.Background())
	stop()
	if got := WrapNetError(canceled, "x", "m", errors.New("boom")); !errors.Is(got, ErrCanceled) {
		t.Errorf("expected canceled classification, got %v", got.Type)
	}

	if got := WrapNetError(context.Background(), "x", "m", errors.New("refused")); !errors.Is(got, ErrConnection) {
		t.Errorf("expected connection classification, got %v", got.Type)
	}
}
