package core

import (
	"errors"
	"fmt"
)

// Sentinel errors, grouped by the failure taxonomy of a snapshot run. Every
// error a run returns wraps exactly one of these.
var (
	// Configuration
	ErrArchiveURLNotConfigured = errors.New("archive url not configured")
	ErrInvalidFilter           = errors.New("invalid filter")

	// Network
	ErrArchiveUnavailable = errors.New("archive unavailable")
	ErrFetchFailed        = errors.New("fetching bucket failed")

	// Decode
	ErrMalformedCheckpoint = errors.New("malformed checkpoint")
	ErrFrameDecode         = errors.New("frame decode error")

	// Cache
	ErrCacheIO            = errors.New("bucket cache io failure")
	ErrBucketHashMismatch = errors.New("bucket content does not match its id")

	// Persist
	ErrPersist = errors.New("persisting snapshot failed")
)

// ValidationError is a custom error type for validation failures.
type ValidationError struct {
	Message string
	Field   string // e.g., "address", "wasm_hash", "compression"
	Value   string // The invalid value
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// FetchError describes a failed GET against the archive. StatusCode is zero
// when the request never produced a response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: got status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the failure was at the transport level or a 5xx.
func (e *FetchError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// FrameDecodeError reports a malformed record inside a bucket stream.
type FrameDecodeError struct {
	Offset int64 // byte offset of the record mark that failed
	Err    error
}

func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("%v at offset %d: %v", ErrFrameDecode, e.Offset, e.Err)
}

func (e *FrameDecodeError) Unwrap() []error { return []error{ErrFrameDecode, e.Err} }

// PersistError reports a failure writing the final snapshot.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("writing ledger snapshot to %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() []error { return []error{ErrPersist, e.Err} }

// IsFetchError reports whether err carries a *FetchError.
func IsFetchError(err error) bool {
	var fetchError *FetchError
	return errors.As(err, &fetchError)
}

// StatusCode extracts the HTTP status from a wrapped *FetchError, or 0.
func StatusCode(err error) int {
	var fetchError *FetchError
	if errors.As(err, &fetchError) {
		return fetchError.StatusCode
	}
	return 0
}
