package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/geostore/internal/storeerr"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The store rejected the request
	ExitCommandError = 2 // Command error (invalid flags, unreadable files, database not reachable)
	ExitRetryable    = 3 // Conflict or lock timeout; retrying may succeed
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// WrapStoreError wraps an error returned by the store, picking the exit code
// from its storage code.
func WrapStoreError(message string, err error) *ExitError {
	switch storeerr.CodeOf(err) {
	case storeerr.ErrCodeConflict, storeerr.ErrCodeLockTimeout:
		return WrapExitError(ExitRetryable, message, err)
	case "":
		return WrapExitError(ExitCommandError, message, err)
	default:
		return WrapExitError(ExitFailure, message, err)
	}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	Txn    string    `json:"txn,omitempty"` // transaction that made the change, if any
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code       string `json:"code"` // storage code, e.g. "CONFLICT"
	Message    string `json:"message"`
	Collection string `json:"collection,omitempty"`
	FeatureID  string `json:"feature_id,omitempty"`
}

// Success outputs a successful result. text is printed in text mode, data is
// encoded in JSON mode.
func (f *OutputFormatter) Success(txn string, data any, text func(io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data, Txn: txn})
	}
	text(f.Writer)
	return nil
}

// Error outputs err. In JSON mode a storage error contributes its code and
// the feature it concerns.
func (f *OutputFormatter) Error(err error) error {
	ce := &CLIError{Code: string(storeerr.CodeOf(err)), Message: err.Error()}
	var se *storeerr.Error
	if errors.As(err, &se) {
		ce.Collection = se.Collection
		ce.FeatureID = se.FeatureID
	}
	if ce.Code == "" {
		ce.Code = "ERROR"
	}
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: ce})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", ce.Code, ce.Message)
	return nil
}
