package googleads

import (
	"errors"
	"fmt"
)

const (
	opTokenRefresh = "token refresh"
	opSearchStream = "search stream"
)

const maxErrorBody = 1024

// APIError is returned when the ads API or the OAuth endpoint answers with a
// non-2xx status.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, body)
}

// IsAuthError reports whether err came from a failed token refresh.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Op == opTokenRefresh
}

// IsRetryable reports whether a query failing with err may succeed when
// repeated. Untyped errors (connection resets, timeouts) and server side
// failures are retried; client errors and token refresh failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	if apiErr.Op == opTokenRefresh {
		return false
	}
	return apiErr.StatusCode >= 500
}
