// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/retrochat/internal/chat"
	"github.com/jeranaias/retrochat/internal/commands"
	"github.com/jeranaias/retrochat/internal/config"
	"github.com/jeranaias/retrochat/internal/model"
	"github.com/jeranaias/retrochat/internal/storage"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the provider rejected the credentials
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitCanceled indicates the user interrupted the operation
	ExitCanceled = 130
)

// UsageError reports bad command-line arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// ExitCode determines the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usageErr   *UsageError
		cmdUsage   *commands.UsageError
		validation *commands.ValidationError
		cfgErrs    config.ValidateErrors
		transport  *model.TransportError
	)
	switch {
	case errors.As(err, &usageErr), errors.As(err, &cmdUsage), errors.As(err, &validation):
		return ExitUsageError
	case errors.As(err, &cfgErrs), errors.Is(err, config.ErrProviderNotFound):
		return ExitConfigError
	case errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, storage.ErrInvalidID):
		return ExitNotFoundError
	case errors.As(err, &transport):
		switch {
		case transport.Type == model.ErrTypeCanceled:
			return ExitCanceled
		case transport.Type == model.ErrTypeTimeout:
			return ExitTimeoutError
		case transport.Status == 401 || transport.Status == 403:
			return ExitAuthError
		default:
			return ExitNetworkError
		}
	}
	return ExitGeneralError
}

// Hint returns a one-line suggestion for recovering from err, or "".
func Hint(err error) string {
	var transport *model.TransportError
	switch {
	case errors.Is(err, chat.ErrNoTransport):
		return "Select a provider with /provider select <name> or --provider."
	case errors.Is(err, chat.ErrSearchDisabled):
		return "Enable search with: retrochat config set storage.search_index true"
	case errors.Is(err, storage.ErrSessionNotFound):
		return "List saved sessions with: retrochat sessions list"
	case errors.As(err, &transport):
		switch {
		case transport.Type == model.ErrTypeConnection:
			return "Is the server running? Check the provider's base_url with /provider list."
		case transport.Type == model.ErrTypeTimeout:
			return "The provider stopped responding. Raise stream_timeout_secs if the model is slow to load."
		case transport.Status == 401:
			return "Set an API key with /provider edit <name> api_key <key>."
		case transport.Status == 404:
			return "Check the model name with /params, or set it with /set model_name <name>."
		}
	}
	return ""
}

// DisplayError writes err and any hint to w.
func DisplayError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := Hint(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}
