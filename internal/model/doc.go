// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the chat pipeline and
// the provider transports.
//
// # Key Types
//
//   - Message, Role: one stored conversation turn
//   - Params: generation settings passed explicitly with each request
//   - Transport, Stream: the provider-neutral streaming contract
//   - TransportError: classified provider failures (timeout, status, ...)
//
// # Usage
//
//	req := model.BuildRequest(params, session.History)
//	st, err := transport.StartStream(ctx, req)
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
package model
