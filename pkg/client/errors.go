package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when a request is still throttled after
	// the maximum number of attempts. Callers must not retry it again.
	ErrRetryExhausted = errors.New("exceeded maximum number of attempts")

	// ErrContextCancelled is returned when the context is cancelled during a
	// request or a retry wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// APIError is a non-retried, non-2xx Graph API response.
type APIError struct {
	Method     string
	URL        string // decoded
	StatusCode int
	ErrorClass ErrorClass
	Body       string
	Header     http.Header
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("graph %s error: %s %d %s: %s",
			e.ErrorClass, e.Method, e.StatusCode, e.URL, e.Body)
	}
	return fmt.Sprintf("graph %s error: %s %d %s",
		e.ErrorClass, e.Method, e.StatusCode, e.URL)
}

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassThrottled represents 429 Too Many Requests.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassNetwork represents transport and timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassAuth represents credential acquisition failures.
	ErrorClassAuth ErrorClass = "auth"
)

// classifyStatus maps a non-2xx status code to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassThrottled
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}
