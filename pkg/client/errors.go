package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrMissingToken is returned by New when no API token is configured.
	ErrMissingToken = errors.New("api token is required")

	// ErrMalformedResponse is returned when a 200 response has no usable "data" member.
	ErrMalformedResponse = errors.New("malformed fount response")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassValidation represents requests the Fount rejected as invalid (400, 422).
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassClient represents other 4xx errors (auth, forbidden, ...).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassNotFound represents 404 responses.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors and undecodable bodies.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport, TLS and timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Error represents a Fount request failure with additional context.
type Error struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	URL        string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fount %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("fount %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to an ErrorClass.
// It returns "" for non-error statuses.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusNotFound:
		return ErrorClassNotFound
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrorClassValidation
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// ClassOf returns the ErrorClass of err.
// Errors that did not come from the client are classified as network errors
// when they look like transport failures, otherwise "".
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassNetwork
	}

	return ""
}

// IsRetryable reports whether a request that failed with err may succeed on a new attempt.
func IsRetryable(err error) bool {
	return shouldRetry(ClassOf(err))
}

// IsNotFound reports whether err means the query matched nothing.
func IsNotFound(err error) bool {
	return ClassOf(err) == ErrorClassNotFound
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassValidation, ErrorClassClient, ErrorClassNotFound:
		// retrying a rejected request cannot help
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}
