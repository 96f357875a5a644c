package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx HTTP reply from a provider endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.Code, e.Body)
}

// IsRetryable reports whether a provider failure is worth retrying on
// another model: rate limited, temporarily overloaded, or model not found.
// Anything else (auth failures, malformed requests) aborts the provider.
func IsRetryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusNotFound:
		return true
	}
	return false
}
