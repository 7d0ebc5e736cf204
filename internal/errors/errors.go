// Package errors defines CodePlane's error taxonomy: one typed struct per
// failure kind named in the error handling design, each implementing error
// and Unwrap, each carrying enough context to populate the
// {code, message, remediation, context} envelope the query surface returns.
package errors

import (
	"fmt"
	"time"
)

// ErrorType names a taxonomy member for logging and metrics, independent of
// the Go type (useful once errors cross a JSON boundary).
type ErrorType string

const (
	ErrorTypeParse           ErrorType = "parse"
	ErrorTypeIntegrity       ErrorType = "integrity"
	ErrorTypeUnknownPath     ErrorType = "unknown_path"
	ErrorTypeInvalidRange    ErrorType = "invalid_range"
	ErrorTypeStaleEpoch      ErrorType = "stale_epoch"
	ErrorTypeWriteContention ErrorType = "write_contention"
	ErrorTypeWatcherOverflow ErrorType = "watcher_overflow"
	ErrorTypeConfig          ErrorType = "config"
)

// ParseError means a file failed to parse. Extraction is skipped for that
// file; lexical indexing is still attempted. This is never surfaced as an
// API error — the background indexer appends it to the job's error list.
// The file's new content hash is stored regardless, so the file is not
// re-extracted until its content changes again.
type ParseError struct {
	FilePath   string
	Line       int
	Column     int
	Underlying error
	Timestamp  time.Time
}

func NewParseError(path string, line, column int, err error) *ParseError {
	return &ParseError{
		FilePath:   path,
		Line:       line,
		Column:     column,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s:%d:%d: %v", e.FilePath, e.Line, e.Column, e.Underlying)
}

func (e *ParseError) Unwrap() error { return e.Underlying }

// IntegrityError covers FK orphans, files referenced in storage that no
// longer exist, and lexical-index drift against the relational store. It
// triggers a wipe+reindex recovery and is kept as a one-time warning, not
// a hard failure. Only the daemon's status response returns (and clears)
// that warning; search and the other query calls do not carry it.
type IntegrityError struct {
	Reason     string
	Underlying error
	Timestamp  time.Time
}

func NewIntegrityError(reason string, err error) *IntegrityError {
	return &IntegrityError{Reason: reason, Underlying: err, Timestamp: time.Now()}
}

func (e *IntegrityError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("integrity error: %s: %v", e.Reason, e.Underlying)
	}
	return fmt.Sprintf("integrity error: %s", e.Reason)
}

func (e *IntegrityError) Unwrap() error { return e.Underlying }

// UnknownPathError means a caller referenced a path not present in storage.
// Surfaced as {code: FILE_NOT_FOUND, path}.
type UnknownPathError struct {
	Path string
}

func NewUnknownPathError(path string) *UnknownPathError {
	return &UnknownPathError{Path: path}
}

func (e *UnknownPathError) Error() string {
	return fmt.Sprintf("unknown path: %s", e.Path)
}

func (e *UnknownPathError) Code() string { return "FILE_NOT_FOUND" }

// InvalidRangeError means the requested line range falls outside the
// file's actual bounds.
type InvalidRangeError struct {
	Path          string
	StartLine     int
	EndLine       int
	FileLineCount int
}

func NewInvalidRangeError(path string, startLine, endLine, fileLineCount int) *InvalidRangeError {
	return &InvalidRangeError{Path: path, StartLine: startLine, EndLine: endLine, FileLineCount: fileLineCount}
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %d-%d for %s (file has %d lines)",
		e.StartLine, e.EndLine, e.Path, e.FileLineCount)
}

func (e *InvalidRangeError) Remediation() string {
	return fmt.Sprintf("request a range between 1 and %d", e.FileLineCount)
}

// StaleEpochError means a caller pinned an epoch the coordinator no longer
// holds a snapshot for; the response includes the current epoch so the
// caller can retry against it.
type StaleEpochError struct {
	RequestedEpoch uint64
	CurrentEpoch   uint64
}

func NewStaleEpochError(requested, current uint64) *StaleEpochError {
	return &StaleEpochError{RequestedEpoch: requested, CurrentEpoch: current}
}

func (e *StaleEpochError) Error() string {
	return fmt.Sprintf("epoch %d is stale, current epoch is %d", e.RequestedEpoch, e.CurrentEpoch)
}

// WriteContentionError means two writers raced on storage, recording the
// operation and how many attempts were made. No code in this repository
// constructs it or retries a write: lock waits rely on the SQLite busy
// timeout that storage.Open sets in its DSN.
type WriteContentionError struct {
	Operation string
	Attempts  int
	Underlying error
}

func NewWriteContentionError(op string, attempts int, err error) *WriteContentionError {
	return &WriteContentionError{Operation: op, Attempts: attempts, Underlying: err}
}

func (e *WriteContentionError) Error() string {
	return fmt.Sprintf("write contention on %s after %d attempts: %v", e.Operation, e.Attempts, e.Underlying)
}

func (e *WriteContentionError) Unwrap() error { return e.Underlying }

// WatcherOverflowError is non-fatal: the filesystem watcher's bounded queue
// dropped events under load. The running count is available from
// watch.Watcher.Dropped; the daemon's status response does not include it,
// and no code in this repository constructs this error. Reconcile later
// catches up via its hash-diff pass regardless.
type WatcherOverflowError struct {
	DroppedCount int
}

func NewWatcherOverflowError(dropped int) *WatcherOverflowError {
	return &WatcherOverflowError{DroppedCount: dropped}
}

func (e *WatcherOverflowError) Error() string {
	return fmt.Sprintf("watcher queue overflowed, dropped %d events", e.DroppedCount)
}

// ConfigError represents an invalid or out-of-range configuration value.
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }

// MultiError aggregates independent failures (e.g. several files failing
// to parse in one extraction batch) into a single error value.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

func (e *MultiError) Unwrap() []error { return e.Errors }
