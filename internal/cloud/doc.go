// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud implements the chat transport for OpenAI-compatible
// endpoints: OpenRouter, LM Studio and any server that speaks
// POST /chat/completions with server-sent events.
//
// # Key Types
//
//   - Client: model.Transport for one endpoint, with retry and rate limiting
//   - SSEReader: minimal server-sent events parser
//   - StreamChunk: one decoded delta event
//
// # Usage
//
//	client := cloud.NewOpenRouterClient(cloud.ClientConfig{APIKey: key})
//	st, err := client.StartStream(ctx, model.BuildRequest(params, history))
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//	for {
//	    frag, err := st.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// Failures before the first byte (connection refused, 429, 5xx) are retried
// with exponential backoff. Once streaming has started an error ends the
// stream; fragments already received remain with the caller.
package cloud
