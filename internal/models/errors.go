package models

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the single error taxonomy surfaced to callers.
var (
	ErrNotInitialized     = errors.New("vault not initialized")
	ErrAlreadyInitialized = errors.New("vault already initialized")
	ErrLocked             = errors.New("vault is locked")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrWrongPassword      = errors.New("wrong password")
	ErrCorruptBlob        = errors.New("corrupt blob")
	ErrManifestCorrupt    = errors.New("manifest corrupt")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// IoError wraps a filesystem failure with the operation and path it
// occurred on. Only IoError and the corruption errors are ever logged
// with context; responses to callers stay generic.
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// NewIoError wraps err as an IoError.
func NewIoError(op, path string, err error) *IoError {
	return &IoError{Op: op, Path: path, Err: err}
}

// IsIoFailure reports whether err is a filesystem failure.
func IsIoFailure(err error) bool {
	var ioErr *IoError
	return errors.As(err, &ioErr)
}

// IntegrityError reports a blob directory on disk that no manifest entry
// references. Garbage blobs are a fatal condition, not recoverable state.
type IntegrityError struct {
	ID     string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error for blob %s: %s", e.ID, e.Detail)
}
