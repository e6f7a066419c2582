package anilist

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound means the requested media or list entry does not exist
// upstream. Callers treat it as "nothing to do", not a failure.
var ErrNotFound = errors.New("not found on anilist")

// ErrMissingToken indicates a request reached the client without an access
// token. Surfaced immediately; no remote call is attempted.
var ErrMissingToken = errors.New("anilist access token is required")

// ThrottledError is the upstream rate-limit signal. The gateway retries
// these automatically up to its budget.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("anilist rate limited, retry after %s", e.RetryAfter)
}

// IsThrottled reports whether err is (or wraps) a rate-limit signal.
func IsThrottled(err error) bool {
	var throttled *ThrottledError
	return errors.As(err, &throttled)
}

// APIError covers non-2xx transport responses and API-level error payloads.
// Not retried by the gateway.
type APIError struct {
	Status   int
	Body     string
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("anilist api error (status %d): %s", e.Status, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("anilist api error: status %d - %s", e.Status, e.Body)
}
