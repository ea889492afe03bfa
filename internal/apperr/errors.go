package apperr

import "fmt"

type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func NewValidation(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func NewValidationWrap(msg string, err error) *ValidationError {
	return &ValidationError{Message: msg, Err: err}
}

// SourceFetchError is returned when a page query or a change subscription fails.
// The affected reader terminates; nothing is retried.
type SourceFetchError struct {
	Op  string
	Err error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s failed: %v", e.Op, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

func NewSourceFetch(op string, err error) *SourceFetchError {
	return &SourceFetchError{Op: op, Err: err}
}

// InvalidOperationError is returned when a change kind has no bulk operation mapping.
type InvalidOperationError struct {
	Kind string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation %q", e.Kind)
}

func NewInvalidOperation(kind string) *InvalidOperationError {
	return &InvalidOperationError{Kind: kind}
}

// SinkWriteError is returned when a bulk write fails. The batch is dropped.
type SinkWriteError struct {
	Index string
	Count int
	Err   error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("bulk write of %d operations to %q failed: %v", e.Count, e.Index, e.Err)
}

func (e *SinkWriteError) Unwrap() error {
	return e.Err
}

func NewSinkWrite(index string, count int, err error) *SinkWriteError {
	return &SinkWriteError{Index: index, Count: count, Err: err}
}
