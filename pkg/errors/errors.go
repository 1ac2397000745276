// Package errors provides structured error handling for tracesim.
// It implements coded errors with context and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound     Code = "E101"
	CodeInvalidFormat    Code = "E102"
	CodeMissingColumn    Code = "E103"
	CodeInvalidTimestamp Code = "E104"
	CodeEmptyLog         Code = "E105"

	// Configuration errors (2xx). Raised before any matching work.
	CodeInvalidRamp       Code = "E201"
	CodeAlphabetExhausted Code = "E202"
	CodeInvalidAlphabet   Code = "E203"
	CodeInvalidFeatures   Code = "E204"
	CodeZeroTiming        Code = "E205"
	CodeSizeMismatch      Code = "E206"
	CodeInvalidConfig     Code = "E207"

	// Computation errors (3xx)
	CodeTimingMismatch Code = "E301"
	CodeInvalidTiming  Code = "E302"
	CodeUnknownSymbol  Code = "E303"

	// Output errors (4xx)
	CodeWriteFailed Code = "E401"
	CodeStoreFailed Code = "E402"

	// System errors (5xx)
	CodeContextCanceled Code = "E501"

	// Unknown
	CodeUnknown Code = "E999"
)

// TraceSimError is the base error type for all tracesim errors.
type TraceSimError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *TraceSimError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *TraceSimError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *TraceSimError) Is(target error) bool {
	if t, ok := target.(*TraceSimError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *TraceSimError) WithContext(key string, value interface{}) *TraceSimError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new TraceSimError.
func New(code Code, message string) *TraceSimError {
	return &TraceSimError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *TraceSimError {
	if err == nil {
		return nil
	}

	return &TraceSimError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *TraceSimError {
	if err == nil {
		return nil
	}
	return &TraceSimError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *TraceSimError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// Stack returns the formatted stack of the outermost TraceSimError in err's
// chain, or "" when there is none.
func Stack(err error) string {
	var tse *TraceSimError
	if !errors.As(err, &tse) {
		return ""
	}
	return tse.FormatStack()
}

// --- Convenience constructors ---

// FileNotFound creates a file not found error.
func FileNotFound(path string) *TraceSimError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// MissingColumn creates a missing column error.
func MissingColumn(column string, available []string) *TraceSimError {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// SizeMismatch reports two collections that must have compatible sizes.
func SizeMismatch(what string, want, got int) *TraceSimError {
	return New(CodeSizeMismatch, what).
		WithContext("want", want).
		WithContext("got", got)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *TraceSimError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var tsErr *TraceSimError
	if errors.As(err, &tsErr) {
		return tsErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var tsErr *TraceSimError
	if errors.As(err, &tsErr) {
		return tsErr.Code
	}
	return CodeUnknown
}

// IsConfigError reports whether err is a precondition violation of the
// measurement configuration.
func IsConfigError(err error) bool {
	return strings.HasPrefix(string(GetCode(err)), "E2")
}

// IsFatal returns true if the error is unrecoverable. A batch keeps going
// after non-fatal per-run errors.
func IsFatal(err error) bool {
	if IsConfigError(err) {
		return true
	}
	return GetCode(err) == CodeContextCanceled
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
