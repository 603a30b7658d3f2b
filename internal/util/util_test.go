// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	data := []byte("hello, world!")

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "test.txt")

	if err := AtomicWriteFile(path, []byte("test data"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_OverwritesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0644); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "updated" {
		t.Errorf("got %q, want %q", content, "updated")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if IsTempFile(e.Name()) {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
}

func TestAtomicWriteFileWithDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "private", "file.json")

	if err := AtomicWriteFileWithDir(path, []byte("{}"), 0600, 0700); err != nil {
		t.Fatalf("AtomicWriteFileWithDir failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 && os.PathSeparator == '/' {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestAtomicWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.json")
	v := map[string]int{"a": 1}

	if err := AtomicWriteJSON(path, v, 0644); err != nil {
		t.Fatalf("AtomicWriteJSON failed: %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "{\n  \"a\": 1\n}" {
		t.Errorf("unexpected JSON: %q", content)
	}
}

func TestAtomicWriteJSON_MarshalError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := AtomicWriteJSON(path, make(chan int), 0644); err == nil {
		t.Fatal("expected marshal error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("nothing should be written on marshal failure")
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"日本語テキスト", 5, "日本..."},
	}

	for _, tt := range tests {
		if got := TruncateRunes(tt.input, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"日本語", 6, "日本語"},
		{"日本語テキスト", 7, "日本..."},
		{"abc", 0, ""},
	}

	for _, tt := range tests {
		got := TruncateWidth(tt.input, tt.max)
		if got != tt.want {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
		if StringWidth(got) > tt.max {
			t.Errorf("TruncateWidth(%q, %d) is %d columns wide", tt.input, tt.max, StringWidth(got))
		}
	}
}

func TestPadWidth(t *testing.T) {
	if got := PadWidth("ab", 5); got != "ab   " {
		t.Errorf("PadWidth = %q", got)
	}
	if got := PadWidth("日本", 6); StringWidth(got) != 6 {
		t.Errorf("PadWidth wide = %q (%d cols)", got, StringWidth(got))
	}
	if got := PadWidth("a long session name", 8); StringWidth(got) != 8 || !strings.HasSuffix(got, "...") {
		t.Errorf("PadWidth truncation = %q", got)
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("\n\n  first \nsecond"); got != "first" {
		t.Errorf("FirstLine = %q", got)
	}
	if got := FirstLine("   "); got != "" {
		t.Errorf("FirstLine blank = %q", got)
	}
}
