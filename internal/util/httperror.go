package util

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 4096

// HTTPError is a provider API failure that carries the HTTP status.
// It satisfies driven.StatusError.
type HTTPError struct {
	// Provider names the service, e.g. "openai" or "ollama".
	Provider string

	// Code is the HTTP status code.
	Code int

	// Message is the provider's error text, if any.
	Message string

	// Err is the underlying client error, if any.
	Err error
}

// Error formats the provider, status and message.
func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: API returned status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.Code, e.Message)
}

// StatusCode returns the HTTP status code.
func (e *HTTPError) StatusCode() int {
	return e.Code
}

// Unwrap returns the underlying client error.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ReadHTTPError builds an HTTPError from a non-2xx response, keeping at most
// the first few kilobytes of the body as the message.
func ReadHTTPError(provider string, resp *http.Response) *HTTPError {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if err != nil && msg == "" {
		msg = fmt.Sprintf("(failed to read body: %v)", err)
	}
	return &HTTPError{Provider: provider, Code: resp.StatusCode, Message: msg}
}
