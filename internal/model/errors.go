// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// =============================================================================
// TRANSPORT ERRORS
// =============================================================================

// ErrorType categorizes transport errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeStatus
	ErrTypeDecode
	ErrTypeCanceled
	ErrTypeProvider
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeStatus:
		return "status"
	case ErrTypeDecode:
		return "decode"
	case ErrTypeCanceled:
		return "canceled"
	case ErrTypeProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// TransportError is returned by transports for any failure talking to a
// provider.
type TransportError struct {
	Provider string
	Type     ErrorType
	Status   int // HTTP status, 0 when none was received
	Message  string
	Cause    error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel TransportErrors by type.
func (e *TransportError) Is(target error) bool {
	t, ok := target.(*TransportError)
	if !ok {
		return false
	}
	return t.Provider == "" && t.Status == 0 && t.Cause == nil && t.Type == e.Type
}

// Sentinels for errors.Is checks.
var (
	ErrTimeout    = &TransportError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrConnection = &TransportError{Type: ErrTypeConnection, Message: "connection failed"}
	ErrCanceled   = &TransportError{Type: ErrTypeCanceled, Message: "request canceled"}
)

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// WrapNetError classifies an error from an HTTP round trip or body read.
// ctx is the request context; its state decides between cancel and timeout.
func WrapNetError(ctx context.Context, provider, msg string, err error) *TransportError {
	te := &TransportError{Provider: provider, Type: ErrTypeConnection, Message: msg, Cause: err}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		te.Type = ErrTypeCanceled
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		te.Type = ErrTypeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		te.Type = ErrTypeTimeout
	}
	return te
}
