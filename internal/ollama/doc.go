// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama implements the chat transport for Ollama's native API.
//
// Replies arrive as newline-delimited JSON on POST /api/chat; each line
// carries a content fragment and the last one sets "done". The client
// implements model.Transport.
//
// # Key Types
//
//   - Client: the transport, configured with ClientConfig
//   - StreamReader: model.Stream over an NDJSON body
//
// # Usage
//
//	client := ollama.NewClient(&ollama.ClientConfig{BaseURL: "http://127.0.0.1:11434"})
//	st, err := client.StartStream(ctx, model.BuildRequest(params, history))
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
// # Timeouts
//
// StreamTimeout bounds the silence between two lines, not the whole reply.
// When it elapses the stream fails with a timeout TransportError and the
// fragments already returned remain valid.
package ollama
