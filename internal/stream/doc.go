// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream separates model "thought" sections, delimited by <think>
// and </think>, from the reply text while fragments are still arriving.
//
// Markers may be split across fragment boundaries; the Filter holds back a
// possible marker prefix until the next fragment decides it. In ModeHide
// thought text is dropped, in ModeShow it is emitted as Thought segments.
//
//	f := stream.NewFilter(stream.ModeHide)
//	for frag := range fragments {
//	    for _, seg := range f.Push(frag) {
//	        fmt.Print(seg.Text)
//	    }
//	}
//	for _, seg := range f.Flush() {
//	    fmt.Print(seg.Text)
//	}
package stream
