// Package storeerr defines the errors of the write path.
//
// Codes are a closed set. Storage back ends translate their native error codes
// (SQLite extended result codes, PostgreSQL SQLSTATEs) into this set through the
// string-keyed registry in registry.go.
package storeerr

import (
	"errors"
	"fmt"
)

// Code categorizes write errors.
type Code string

const (
	// ErrCodeConflict indicates an optimistic precondition did not hold, or the
	// storage rejected a row as conflicting with an existing one.
	ErrCodeConflict Code = "CONFLICT"

	// ErrCodeDuplicateOperation indicates a feature id appears twice in one batch.
	ErrCodeDuplicateOperation Code = "DUPLICATE_OPERATION"

	// ErrCodeExecution indicates a batched statement failed in the database.
	ErrCodeExecution Code = "EXECUTION_FAILED"

	// ErrCodeLockTimeout indicates a row or database lock was not acquired in time.
	ErrCodeLockTimeout Code = "LOCK_TIMEOUT"

	// ErrCodeCollectionNotFound indicates the target collection does not exist.
	ErrCodeCollectionNotFound Code = "COLLECTION_NOT_FOUND"

	// ErrCodeCollectionExists indicates a collection of that id already exists.
	ErrCodeCollectionExists Code = "COLLECTION_EXISTS"

	// ErrCodeIllegalArgument indicates a malformed request.
	ErrCodeIllegalArgument Code = "ILLEGAL_ARGUMENT"
)

// Error is a write path error with structured fields for diagnostics.
type Error struct {
	Code Code

	// Message is a human-readable description.
	Message string

	// Collection and FeatureID identify the offending write, when known.
	Collection string
	FeatureID  string

	// Err is the underlying driver error, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Collection != "" && e.FeatureID != "" {
		msg = fmt.Sprintf("%s (collection=%s, id=%s)", msg, e.Collection, e.FeatureID)
	} else if e.Collection != "" {
		msg = fmt.Sprintf("%s (collection=%s)", msg, e.Collection)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsConflict(err error) bool  { return CodeOf(err) == ErrCodeConflict }
func IsDuplicate(err error) bool { return CodeOf(err) == ErrCodeDuplicateOperation }
func IsExecution(err error) bool { return CodeOf(err) == ErrCodeExecution }
func IsNotFound(err error) bool  { return CodeOf(err) == ErrCodeCollectionNotFound }

// NewConflict reports a failed optimistic precondition.
func NewConflict(collection, id, message string) *Error {
	return &Error{Code: ErrCodeConflict, Message: message, Collection: collection, FeatureID: id}
}

// NewDuplicate reports a feature id that appears more than once in a batch.
func NewDuplicate(collection, id string) *Error {
	return &Error{
		Code:       ErrCodeDuplicateOperation,
		Message:    "feature appears more than once in the batch",
		Collection: collection,
		FeatureID:  id,
	}
}

// NewExecution wraps a driver error of a batched statement. If the storage code
// of err is registered, the registered code replaces ErrCodeExecution.
func NewExecution(collection, message string, err error) *Error {
	code := ErrCodeExecution
	if c, ok := Translate(err); ok {
		code = c
	}
	return &Error{Code: code, Message: message, Collection: collection, Err: err}
}

// NewCollectionNotFound reports a missing collection.
func NewCollectionNotFound(collection string) *Error {
	return &Error{Code: ErrCodeCollectionNotFound, Message: "collection does not exist", Collection: collection}
}

// NewCollectionExists reports a collection id that is already taken.
func NewCollectionExists(collection string) *Error {
	return &Error{Code: ErrCodeCollectionExists, Message: "collection already exists", Collection: collection}
}

// NewIllegalArgument reports a malformed request.
func NewIllegalArgument(collection, id, message string) *Error {
	return &Error{Code: ErrCodeIllegalArgument, Message: message, Collection: collection, FeatureID: id}
}
