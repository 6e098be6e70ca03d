package storage

import "errors"

// StoreError is the error type returned by Store implementations for
// domain failures (missing item, type clash, lock timeout, ...).
//
// Infrastructure failures from the underlying database are wrapped in a
// StoreError with code ErrIOError so callers can classify every storage
// failure with IsCode.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the item the error refers to (if applicable)
	Path string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a StoreError.
type ErrorCode int

const (
	// ErrNotFound indicates the requested item doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates an item already occupies the path
	ErrAlreadyExists

	// ErrNotFolder indicates the operation expected a folder but found a file
	ErrNotFolder

	// ErrIsFolder indicates the operation expected a file but found a folder
	ErrIsFolder

	// ErrInvalidArgument indicates invalid parameters were provided
	ErrInvalidArgument

	// ErrIOError indicates the backend failed to read or write
	ErrIOError

	// ErrLockTimeout indicates a path lock could not be acquired in time
	ErrLockTimeout

	// ErrConflict indicates a concurrent transaction committed conflicting writes
	ErrConflict

	// ErrTxnTooBig indicates a transaction exceeded the backend's size limits
	ErrTxnTooBig

	// ErrReadOnly indicates a write was attempted in a read-only transaction
	ErrReadOnly
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrNotFolder:
		return "not a folder"
	case ErrIsFolder:
		return "is a folder"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrIOError:
		return "i/o error"
	case ErrLockTimeout:
		return "lock timeout"
	case ErrConflict:
		return "conflict"
	case ErrTxnTooBig:
		return "transaction too big"
	case ErrReadOnly:
		return "read only"
	default:
		return "unknown"
	}
}

// IsCode reports whether err is (or wraps) a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.Code == code
}

// IsNotFound is shorthand for IsCode(err, ErrNotFound).
func IsNotFound(err error) bool {
	return IsCode(err, ErrNotFound)
}

// NotFound builds an ErrNotFound StoreError for path.
func NotFound(path RepoPath) error {
	return &StoreError{Code: ErrNotFound, Message: "item not found", Path: path.String()}
}
