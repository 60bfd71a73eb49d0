// Package errors provides structured error types for the catalog metadata layer.
// All errors include a category, code, message, the offending property and a
// retryable flag for consistent error handling across components.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation    ErrorCategory = "VALIDATION"
	ErrCategoryConfiguration ErrorCategory = "CONFIGURATION"
	ErrCategoryBackend       ErrorCategory = "BACKEND"
	ErrCategoryStorage       ErrorCategory = "STORAGE"
	ErrCategoryInternal      ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeMissingRequiredProperty  = "MISSING_REQUIRED_PROPERTY"
	CodeUnknownProperty          = "UNKNOWN_PROPERTY"
	CodeReservedPropertyAssigned = "RESERVED_PROPERTY_ASSIGNED"
	CodeImmutablePropertyChange  = "IMMUTABLE_PROPERTY_CHANGE"
	CodeTypeCoercion             = "TYPE_COERCION"
	CodeInvalidPartitionShape    = "INVALID_PARTITION_SHAPE"
	CodeUnknownKind              = "UNKNOWN_KIND"

	// Configuration codes
	CodeDuplicateKeyMapping    = "DUPLICATE_KEY_MAPPING"
	CodeDuplicatePropertyEntry = "DUPLICATE_PROPERTY_ENTRY"
	CodeInvalidDeclaration     = "INVALID_DECLARATION"

	// Backend codes
	CodeApplyFailed    = "APPLY_FAILED"
	CodeReadFailed     = "READ_FAILED"
	CodeEntityNotFound      = "ENTITY_NOT_FOUND"
	CodeEntityAlreadyExists = "ENTITY_ALREADY_EXISTS"
	CodeVersionConflict     = "VERSION_CONFLICT"

	// Storage codes
	CodeUploadFailed       = "UPLOAD_FAILED"
	CodeDownloadFailed     = "DOWNLOAD_FAILED"
	CodeObjectNotFound     = "OBJECT_NOT_FOUND"
	CodePreconditionFailed = "PRECONDITION_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is matching. Only category and code are compared.
var (
	ErrMissingRequiredProperty  = New(ErrCategoryValidation, CodeMissingRequiredProperty, "missing required property")
	ErrUnknownProperty          = New(ErrCategoryValidation, CodeUnknownProperty, "unknown property")
	ErrReservedPropertyAssigned = New(ErrCategoryValidation, CodeReservedPropertyAssigned, "reserved property assigned")
	ErrImmutablePropertyChange  = New(ErrCategoryValidation, CodeImmutablePropertyChange, "immutable property changed")
	ErrTypeCoercion             = New(ErrCategoryValidation, CodeTypeCoercion, "type coercion failed")
	ErrInvalidPartitionShape    = New(ErrCategoryValidation, CodeInvalidPartitionShape, "invalid partition shape")
	ErrUnknownKind              = New(ErrCategoryValidation, CodeUnknownKind, "unknown kind")
	ErrDuplicateKeyMapping      = New(ErrCategoryConfiguration, CodeDuplicateKeyMapping, "duplicate key mapping")
	ErrDuplicatePropertyEntry   = New(ErrCategoryConfiguration, CodeDuplicatePropertyEntry, "duplicate property entry")
	ErrInvalidDeclaration       = New(ErrCategoryConfiguration, CodeInvalidDeclaration, "invalid declaration")
	ErrEntityNotFound           = New(ErrCategoryBackend, CodeEntityNotFound, "entity not found")
	ErrEntityAlreadyExists      = New(ErrCategoryBackend, CodeEntityAlreadyExists, "entity already exists")
	ErrVersionConflict          = New(ErrCategoryBackend, CodeVersionConflict, "entity changed since it was read")
)

// MetaError is the structured error type used throughout the system.
type MetaError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Property  string
	Expected  string
	Actual    string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *MetaError) Error() string {
	msg := e.Message
	if e.Property != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Property)
	}
	if e.Expected != "" || e.Actual != "" {
		msg = fmt.Sprintf("%s (expected %s, got %q)", msg, e.Expected, e.Actual)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *MetaError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *MetaError) Is(target error) bool {
	var t *MetaError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// GRPCStatus lets grpc transports surface the error with a matching status code.
func (e *MetaError) GRPCStatus() *status.Status {
	var code codes.Code
	switch e.Category {
	case ErrCategoryValidation:
		code = codes.InvalidArgument
	case ErrCategoryConfiguration:
		code = codes.FailedPrecondition
	case ErrCategoryBackend, ErrCategoryStorage:
		code = codes.Unavailable
		switch e.Code {
		case CodeEntityNotFound, CodeObjectNotFound:
			code = codes.NotFound
		case CodeEntityAlreadyExists:
			code = codes.AlreadyExists
		case CodePreconditionFailed, CodeVersionConflict:
			code = codes.Aborted
		}
	default:
		code = codes.Internal
	}
	return status.New(code, e.Error())
}

// New creates a new MetaError.
func New(category ErrorCategory, code, message string) *MetaError {
	return &MetaError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new MetaError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *MetaError {
	return &MetaError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *MetaError) WithDetails(details map[string]interface{}) *MetaError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithProperty returns a copy of the error naming the offending property.
func (e *MetaError) WithProperty(name string) *MetaError {
	cp := *e
	cp.Property = name
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var me *MetaError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a MetaError.
func GetCategory(err error) ErrorCategory {
	var me *MetaError
	if errors.As(err, &me) {
		return me.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a MetaError.
func GetCode(err error) string {
	var me *MetaError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// GetProperty extracts the offending property name from an error chain.
func GetProperty(err error) string {
	var me *MetaError
	if errors.As(err, &me) {
		return me.Property
	}
	return ""
}

// isRetryable reports whether a category/code pair describes a transient fault.
// Validation and configuration errors are deterministic and never retryable.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryBackend && code == CodeReadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for the validation error kinds.

func MissingRequiredProperty(name string) *MetaError {
	return ErrMissingRequiredProperty.WithProperty(name)
}

func UnknownProperty(name string) *MetaError {
	return ErrUnknownProperty.WithProperty(name)
}

func ReservedPropertyAssigned(name string) *MetaError {
	return ErrReservedPropertyAssigned.WithProperty(name)
}

func ImmutablePropertyChange(name, current, proposed string) *MetaError {
	e := ErrImmutablePropertyChange.WithProperty(name)
	e.Expected = fmt.Sprintf("%q", current)
	e.Actual = proposed
	return e
}

func TypeCoercion(name, raw, expectedType string, cause error) *MetaError {
	e := ErrTypeCoercion.WithProperty(name)
	e.Expected = expectedType
	e.Actual = raw
	e.Cause = cause
	return e
}

func InvalidPartitionShape(field, expected, actual string) *MetaError {
	e := ErrInvalidPartitionShape.WithProperty(field)
	e.Expected = expected
	e.Actual = actual
	return e
}

func UnknownKind(kind string) *MetaError {
	return ErrUnknownKind.WithProperty(kind)
}

// Convenience constructors for construction-time configuration defects.

func DuplicateKeyMapping(key, side string) *MetaError {
	e := ErrDuplicateKeyMapping.WithProperty(key)
	e.Details = map[string]interface{}{"side": side}
	return e
}

func DuplicatePropertyEntry(name string) *MetaError {
	return ErrDuplicatePropertyEntry.WithProperty(name)
}

func InvalidDeclaration(name, message string) *MetaError {
	e := ErrInvalidDeclaration.WithProperty(name)
	e.Message = "invalid declaration: " + message
	return e
}

func NewBackendError(code, message string, cause error) *MetaError {
	return Wrap(ErrCategoryBackend, code, message, cause)
}

func NewStorageError(code, message string, cause error) *MetaError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *MetaError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
