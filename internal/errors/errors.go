package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Collection errors - remote API failures, retryable when rate limited
	ErrorTypeCollection
	// Schema errors - a batch record is missing a required field
	ErrorTypeSchema
	// Store binding errors - the graph store already belongs to another repository
	ErrorTypeStoreBinding
	// Analysis errors - blame or history lookups for one commit or file
	ErrorTypeAnalysis
	// FileSystem errors - baseline and delta file I/O
	ErrorTypeFileSystem
	// Storage errors - graph store or run ledger failures
	ErrorTypeStorage
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, may impact functionality
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string

	// RetryAfter is set on rate-limit errors. Zero means not retryable
	// unless Retryable is set.
	RetryAfter time.Duration
	Retryable  bool
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if e.RetryAfter > 0 {
		sb.WriteString(fmt.Sprintf("Retry after: %s\n", e.RetryAfter))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeCollection:
		return "COLLECTION"
	case ErrorTypeSchema:
		return "SCHEMA"
	case ErrorTypeStoreBinding:
		return "STORE_BINDING"
	case ErrorTypeAnalysis:
		return "ANALYSIS"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	case ErrorTypeStorage:
		return "STORAGE"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// CollectionError wraps a remote collection failure. It is retryable only
// when transient is true.
func CollectionError(err error, transient bool, message string) *Error {
	e := Wrap(err, ErrorTypeCollection, SeverityHigh, message)
	if e != nil {
		e.Retryable = transient
	}
	return e
}

// RateLimit creates a retryable collection error that carries the wait the
// remote side asked for.
func RateLimit(err error, retryAfter time.Duration, message string) *Error {
	e := &Error{
		Type:       ErrorTypeCollection,
		Severity:   SeverityMedium,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
		RetryAfter: retryAfter,
		Retryable:  true,
	}
	return e
}

// SchemaErrorf reports a batch record that is missing a required field
func SchemaErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeSchema, SeverityHigh, fmt.Sprintf(format, args...))
}

// StoreBindingErrorf reports a graph store owned by a different repository
func StoreBindingErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeStoreBinding, SeverityCritical, fmt.Sprintf(format, args...))
}

// AnalysisError wraps a per-commit or per-file history failure
func AnalysisError(err error, message string) *Error {
	return Wrap(err, ErrorTypeAnalysis, SeverityLow, message)
}

// AnalysisErrorf wraps a per-commit or per-file history failure with formatting
func AnalysisErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeAnalysis, SeverityLow, fmt.Sprintf(format, args...))
}

// FileSystemError wraps a filesystem error
func FileSystemError(err error, message string) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityHigh, message)
}

// FileSystemErrorf wraps a filesystem error with formatting
func FileSystemErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityHigh, fmt.Sprintf(format, args...))
}

// StorageError wraps a graph store or ledger error
func StorageError(err error, message string) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityCritical, message)
}

// StorageErrorf wraps a graph store or ledger error with formatting
func StorageErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityCritical, fmt.Sprintf(format, args...))
}

// InternalError creates an internal error
func InternalError(message string) *Error {
	return New(ErrorTypeInternal, SeverityCritical, message)
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

func asError(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	if e, ok := asError(err); ok {
		return e.IsFatal()
	}
	return false
}

// IsRetryable reports whether err, or any error it wraps, is a transient
// collection failure.
func IsRetryable(err error) bool {
	if e, ok := asError(err); ok {
		return e.Retryable || e.RetryAfter > 0
	}
	return false
}

// RetryAfterOf returns the wait requested by a rate-limit error, or zero.
func RetryAfterOf(err error) time.Duration {
	if e, ok := asError(err); ok {
		return e.RetryAfter
	}
	return 0
}

// IsType reports whether err wraps an *Error of the given type
func IsType(err error, errType ErrorType) bool {
	if e, ok := asError(err); ok {
		return e.Type == errType
	}
	return false
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}
	if e, ok := asError(err); ok {
		return e.Severity
	}
	return SeverityMedium
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	if e, ok := asError(err); ok {
		return e.Type
	}
	return ErrorTypeInternal
}
