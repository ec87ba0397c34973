package usecase

import (
	"errors"
	"fmt"
	"time"
)

// ErrObjectNotFound is returned by ObjectStore.Get when the named object does
// not exist in the bucket. The store reports it mechanically; turning it into
// job-level failure semantics happens here.
var ErrObjectNotFound = errors.New("object not found")

// ValidationError marks a submission rejected before any staging or
// execution happened.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NotFoundError marks a checkpoint reference that names no object in
// checkpoint storage.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("checkpoint not found: %s", e.Name)
}

// StorageError wraps a bucket access failure. It is surfaced verbatim and
// never retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ExecutionError marks a run that the executable itself failed: either a
// launch failure or a non-zero exit.
type ExecutionError struct {
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution failed: %v", e.Err)
	}
	return fmt.Sprintf("execution failed with exit code %d: %s", e.ExitCode, e.StderrTail)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TimeoutError marks a run killed at the wall-clock bound. Kept distinct
// from ExecutionError so callers can tell the two apart.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job timed out after %s", e.Limit)
}
