// Package exception provides the error types shared by the covidash pipeline,
// its data sources and its exporters.
//
// Every error raised by a component is a *PipelineError carrying the module it
// came from and a Kind sentinel, so callers classify failures with errors.Is
// instead of string matching.
package exception

import (
	"errors"
	"fmt"
	"strings"
)

// Kind sentinels. A PipelineError matches its Kind through errors.Is.
var (
	// ErrSchema marks a missing, misnamed or malformed column.
	ErrSchema = errors.New("SchemaError")
	// ErrDateParse marks a date-column label that does not match the expected layout.
	ErrDateParse = errors.New("DateParseError")
	// ErrSource marks a failure fetching or decoding an upstream table.
	ErrSource = errors.New("SourceError")
	// ErrExport marks a failure writing a published snapshot to an external sink.
	ErrExport = errors.New("ExportError")
	// ErrConfig marks an invalid configuration.
	ErrConfig = errors.New("ConfigError")
)

// PipelineError is the error type raised by covidash components.
type PipelineError struct {
	// Module indicates where the error occurred (e.g., "normalizer", "melter", "source").
	Module string
	// Message is a concise description of the error.
	Message string
	// Kind is one of the package sentinels; may be nil for unclassified errors.
	Kind error
	// OriginalErr is the wrapped cause.
	OriginalErr error

	retryable bool
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(module string, kind error, message string, originalErr error, retryable bool) *PipelineError {
	return &PipelineError{
		Module:      module,
		Message:     message,
		Kind:        kind,
		OriginalErr: originalErr,
		retryable:   retryable,
	}
}

// NewSchemaError creates a non-retryable SchemaError.
func NewSchemaError(module, format string, a ...interface{}) *PipelineError {
	return NewPipelineError(module, ErrSchema, fmt.Sprintf(format, a...), nil, false)
}

// NewDateParseError creates a non-retryable DateParseError for the given label.
func NewDateParseError(module, label string, cause error) *PipelineError {
	return NewPipelineError(module, ErrDateParse, fmt.Sprintf("date column label %q does not match m/d/yy", label), cause, false)
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Module)
	b.WriteString("] ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.OriginalErr != nil {
		b.WriteString(": ")
		b.WriteString(e.OriginalErr.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the original error to errors.Is/As.
func (e *PipelineError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.OriginalErr != nil {
		errs = append(errs, e.OriginalErr)
	}
	return errs
}

// IsRetryable reports whether the operation that produced this error may be retried.
func (e *PipelineError) IsRetryable() bool {
	return e.retryable
}

// IsSchemaError reports whether err is or wraps a SchemaError.
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrSchema)
}

// IsDateParseError reports whether err is or wraps a DateParseError.
func IsDateParseError(err error) bool {
	return errors.Is(err, ErrDateParse)
}

// IsRetryable reports whether err is a PipelineError flagged retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return false
}

// IsDataError reports whether err means the upstream tables themselves are
// unusable (schema or date-parse failure). Source, config and export failures are not.
func IsDataError(err error) bool {
	return IsSchemaError(err) || IsDateParseError(err)
}

// IsSourceError reports whether err is or wraps a failure to obtain the raw tables.
func IsSourceError(err error) bool {
	return errors.Is(err, ErrSource)
}

// ExtractErrorMessage returns the Message of a PipelineError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
