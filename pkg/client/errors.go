package client

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wikibatch/mediawiki-query-client/pkg/response"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents permanent request errors (bad parameters,
	// auth failures, permanent 4xx). Never retried.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx and transient server-side API errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429, maxlag and ratelimited signals.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// RequestError is a transport or API error with classification context.
type RequestError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// RetryAfter is the server-suggested wait before the next attempt,
	// taken from the Retry-After header or a maxlag error. Zero when the
	// server did not suggest one.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("request %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Transient reports whether this error may succeed on retry.
func (e *RequestError) Transient() bool {
	return shouldRetry(e.ErrorClass)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// permanent request errors are never retried
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

// transientAPICodes are API error codes worth retrying. Everything else the
// API rejects (badtoken, invalidtitle, permissiondenied, ...) is permanent.
var transientAPICodes = map[string]ErrorClass{
	"maxlag":      ErrorClassRateLimit,
	"ratelimited": ErrorClassRateLimit,
	"readonly":    ErrorClassServer,
}

// classifyAPIError maps an API error object to an error class.
func classifyAPIError(apiErr *response.APIError) ErrorClass {
	if class, ok := transientAPICodes[apiErr.Code]; ok {
		return class
	}
	// internal_api_error_* codes indicate a server fault
	if strings.HasPrefix(apiErr.Code, "internal_api_error") {
		return ErrorClassServer
	}
	return ErrorClassClient
}
