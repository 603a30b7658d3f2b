// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"strings"
	"testing"
)

func TestSplit_MarkerAcrossFragments(t *testing.T) {
	primary, thought := Split(ModeHide, "A<thi", "nk>B</think>C")
	if primary != "AC" {
		t.Errorf("primary = %q, want %q", primary, "AC")
	}
	if thought != "" {
		t.Errorf("thought = %q, want empty in hide mode", thought)
	}
}

func TestSplit_ShowRoutesThought(t *testing.T) {
	primary, thought := Split(ModeShow, "<think>x</think>")
	if primary != "" {
		t.Errorf("primary = %q, want empty", primary)
	}
	if thought != "x" {
		t.Errorf("thought = %q, want %q", thought, "x")
	}
}

func TestSplit_Table(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		fragments []string
		primary   string
		thought   string
	}{
		{"plain", ModeHide, []string{"hello ", "world"}, "hello world", ""},
		{"close split", ModeShow, []string{"<think>ab</th", "ink>cd"}, "cd", "ab"},
		{"byte at a time", ModeShow, strings.Split("x<think>yy</think>z", ""), "xz", "yy"},
		{"two segments", ModeShow, []string{"<think>1</think>a<think>2</think>b"}, "ab", "12"},
		{"unterminated show", ModeShow, []string{"a<think>still thinking"}, "a", "still thinking"},
		{"unterminated hide", ModeHide, []string{"a<think>still", " thinking"}, "a", ""},
		{"partial open at end", ModeHide, []string{"a<thi"}, "a<thi", ""},
		{"lookalike", ModeHide, []string{"<thin", "g>"}, "<thing>", ""},
		{"stray close", ModeHide, []string{"a</think>b"}, "a</think>b", ""},
		{"empty fragments", ModeHide, []string{"", "a", "", "b"}, "ab", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, thought := Split(tt.mode, tt.fragments...)
			if primary != tt.primary {
				t.Errorf("primary = %q, want %q", primary, tt.primary)
			}
			if thought != tt.thought {
				t.Errorf("thought = %q, want %q", thought, tt.thought)
			}
		})
	}
}

func TestFilter_NeverEmitsPartialMarker(t *testing.T) {
	f := NewFilter(ModeShow)

	for _, frag := range []string{"hi <", "th", "ink", ">deep</", "thin", "k> bye"} {
		for _, seg := range f.Push(frag) {
			if strings.Contains(seg.Text, "<") {
				t.Errorf("segment %q leaked marker bytes", seg.Text)
			}
		}
	}
	if segs := f.Flush(); len(segs) != 0 {
		t.Errorf("unexpected flush output %v", segs)
	}
}

func TestFilter_HoldsBoundedLookback(t *testing.T) {
	f := NewFilter(ModeHide)
	f.Push("abcdef</thin")
	if len(f.held) > len(CloseMarker)-1 {
		t.Errorf("held %d bytes, bound is %d", len(f.held), len(CloseMarker)-1)
	}

	f = NewFilter(ModeHide)
	segs := f.Push("text<think")
	if len(segs) != 1 || segs[0].Text != "text" {
		t.Errorf("segments = %v", segs)
	}
	if f.held != "<think" {
		t.Errorf("held = %q", f.held)
	}
}

func TestFilter_InThought(t *testing.T) {
	f := NewFilter(ModeHide)
	f.Push("<think>abc")
	if !f.InThought() {
		t.Error("expected to be inside a thought segment")
	}
	f.Push("</think>")
	if f.InThought() {
		t.Error("expected thought segment to be closed")
	}
}

func TestFilter_OrderPreservedWithinFragment(t *testing.T) {
	f := NewFilter(ModeShow)
	segs := f.Push("a<think>b</think>c")
	segs = append(segs, f.Flush()...)

	want := []Segment{{Primary, "a"}, {Thought, "b"}, {Primary, "c"}}
	if len(segs) != len(want) {
		t.Fatalf("got %v, want %v", segs, want)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Errorf("segment %d = %v, want %v", i, segs[i], want[i])
		}
	}
}

func TestFilter_TrimLeading(t *testing.T) {
	f := NewFilter(ModeHide, WithTrimLeading(true))

	var out strings.Builder
	for _, frag := range []string{"<think>plan</think>", "\n\n", "  Answer", "\n\nmore"} {
		for _, seg := range f.Push(frag) {
			out.WriteString(seg.Text)
		}
	}
	for _, seg := range f.Flush() {
		out.WriteString(seg.Text)
	}

	if out.String() != "Answer\n\nmore" {
		t.Errorf("output = %q", out.String())
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"show": ModeShow, "HIDE": ModeHide, " Show ": ModeShow} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("maybe"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if ModeShow.String() != "show" || ModeHide.String() != "hide" {
		t.Error("unexpected mode names")
	}
}
