package services

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a service error for the HTTP layer.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindRateLimited Kind = "rate_limited"
	KindInternal    Kind = "internal"
)

// Error represents a service error that carries its own client message
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func NewRateLimitError(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

func NewInternalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a service error of the given kind
func IsKind(err error, kind Kind) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Kind == kind
}
