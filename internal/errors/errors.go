package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
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

// Is matches another AppError by code, so wrapped sentinels compare equal.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrNoFile       = &AppError{Code: "UPLOAD_001", Message: "No file uploaded"}
	ErrInvalidType  = &AppError{Code: "UPLOAD_002", Message: "Invalid file type"}
	ErrFileTooLarge = &AppError{Code: "UPLOAD_003", Message: "file exceeds upload limit"}

	ErrExtractionFailed   = &AppError{Code: "EXTRACT_001", Message: "text extraction failed"}
	ErrBackendUnavailable = &AppError{Code: "EXTRACT_002", Message: "backend not available"}

	ErrContactInvalid = &AppError{Code: "CONTACT_001", Message: "invalid contact form"}

	ErrRateLimited = &AppError{Code: "RATE_001", Message: "rate limit exceeded"}

	ErrInternal = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
