package apperrors

import (
	"fmt"
	"time"
)

// ErrorCode identifies a class of failure surfaced to callers.
type ErrorCode string

const (
	ErrCodeValidation           ErrorCode = "VALIDATION_ERROR"
	ErrCodeDuplicateIdentity    ErrorCode = "DUPLICATE_IDENTITY"
	ErrCodeReferentialIntegrity ErrorCode = "REFERENTIAL_INTEGRITY"
	ErrCodeStorageUnavailable   ErrorCode = "STORAGE_UNAVAILABLE"
	ErrCodeMessageNotFound      ErrorCode = "MESSAGE_NOT_FOUND"
	ErrCodeFileAccess           ErrorCode = "FILE_ACCESS_ERROR"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// AppError is a typed application error carrying the operation context
// (which external id, which operation) needed to log and alert.
type AppError struct {
	Code      ErrorCode         `json:"code"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Cause     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsValidation reports whether the error is recoverable by re-prompting.
func (e *AppError) IsValidation() bool {
	return e.Code == ErrCodeValidation
}

// WithContext adds a context entry to the error.
func (e *AppError) WithContext(key, value string) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithExternalID tags the error with the external identity it concerns.
func (e *AppError) WithExternalID(externalID int64) *AppError {
	return e.WithContext("external_id", fmt.Sprintf("%d", externalID))
}

// WithOperation tags the error with the failed operation name.
func (e *AppError) WithOperation(op string) *AppError {
	return e.WithContext("operation", op)
}

// New creates a new application error.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Wrapf wraps an existing error with formatting.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// AsAppError casts an error to AppError.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err != nil {
		appErr, _ = err.(*AppError)
	}
	return appErr, appErr != nil
}
