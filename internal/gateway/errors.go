package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformed matches responses that arrived but could not be understood.
var ErrMalformed = errors.New("gateway: malformed response")

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway: status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether a failed call is worth repeating: transport
// errors, 5xx and 429.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError || se.StatusCode == http.StatusTooManyRequests
	}

	var de *decodeError
	return !errors.As(err, &de)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string        { return "gateway: decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error        { return e.err }
func (e *decodeError) Is(target error) bool { return target == ErrMalformed }
