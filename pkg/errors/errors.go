package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTransport        = errors.New("transport error")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrRecordNotFound   = errors.New("record not found")
	ErrTranscription    = errors.New("transcription failed")
	ErrPersistence      = errors.New("persistence failed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownProcessor = errors.New("unknown processor")
	ErrTimeout          = errors.New("operation timed out")
)

// Category tells the scheduler how to treat a failure.
type Category int

const (
	CategoryPermanent Category = iota
	CategoryRetryable
)

type AppError struct {
	Err      error
	Message  string
	Category Category
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, category Category, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		Category: category,
	}
}

func Newf(sentinel error, category Category, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		Category: category,
	}
}

// IsRetryable reports whether a later attempt at the same operation may
// succeed. Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category == CategoryRetryable
	}
	var classified interface{ Retryable() bool }
	if errors.As(err, &classified) {
		return classified.Retryable()
	}

	switch {
	case errors.Is(err, ErrTransport), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ErrPersistence):
		return true
	default:
		return false
	}
}
