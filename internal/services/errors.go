package services

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorInvalid         ErrorCode = "invalid"
	ErrorForbidden       ErrorCode = "forbidden"
	ErrorNotFound        ErrorCode = "not_found"
	ErrorConflict        ErrorCode = "conflict"
	ErrorUnauthorized    ErrorCode = "unauthorized"
	ErrorDataUnavailable ErrorCode = "data_unavailable"
	ErrorMalformedInput  ErrorCode = "malformed_input"
	ErrorTooManyRequests ErrorCode = "too_many_requests"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

// NewDataUnavailableError marks a transient fetch failure. Callers should
// offer a retry instead of treating it as a business outcome.
func NewDataUnavailableError(msg string, cause error) error {
	return &ServiceError{Code: ErrorDataUnavailable, Message: msg, Err: cause}
}

func NewMalformedInputError(msg string) error {
	return &ServiceError{Code: ErrorMalformedInput, Message: msg}
}

func NewTooManyRequestsError(msg string) error {
	return &ServiceError{Code: ErrorTooManyRequests, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsNotFound reports whether err carries the not_found code.
func IsNotFound(err error) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == ErrorNotFound
}

var (
	// ErrSurveyNotFound is returned when an operation references a missing survey.
	ErrSurveyNotFound = &ServiceError{Code: ErrorNotFound, Message: "survey not found"}
	// ErrGroupNotFound is returned when an operation references a missing group.
	ErrGroupNotFound = &ServiceError{Code: ErrorNotFound, Message: "group not found"}
	// ErrUserNotFound is returned when an operation references a missing user.
	ErrUserNotFound = &ServiceError{Code: ErrorNotFound, Message: "user not found"}
	// ErrTemplateNotFound is returned when an operation references a missing template.
	ErrTemplateNotFound = &ServiceError{Code: ErrorNotFound, Message: "template not found"}
)

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
