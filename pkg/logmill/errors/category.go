// Package errors classifies pipeline errors and retries transient ones.
//
// Units, transports and stores report plain Go errors. Categorize maps them
// onto three handling strategies:
//   - Transient: retrying will likely help (busy database, timeouts)
//   - Permanent: retrying will not help (bad data, configuration)
//   - Shutdown: the pipeline is stopping; the error is expected and swallowed
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// ErrShutdown indicates an operation was interrupted because the pipeline
// is shutting down.
var ErrShutdown = errors.New("logmill: shutting down")

// Category represents how an error should be handled.
type Category int

const (
	// CategoryPermanent indicates retry won't help.
	CategoryPermanent Category = iota

	// CategoryTransient indicates retry will likely help.
	CategoryTransient

	// CategoryShutdown indicates the error was caused by shutdown.
	CategoryShutdown
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable.
func Transient(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Context: context}
}

// Permanent marks err as not retryable.
func Permanent(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Context: context}
}

type temporary interface {
	Temporary() bool
}

type timeout interface {
	Timeout() bool
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	if IsShutdown(err) {
		return CategoryShutdown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	var to timeout
	if errors.As(err, &to) && to.Timeout() {
		return CategoryTransient
	}
	var tmp temporary
	if errors.As(err, &tmp) && tmp.Temporary() {
		return CategoryTransient
	}

	return CategoryPermanent
}

// IsShutdown reports whether err only signals that a resource was closed
// or a context cancelled during shutdown.
func IsShutdown(err error) bool {
	return errors.Is(err, ErrShutdown) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed)
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
