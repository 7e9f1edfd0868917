package reddit

import "fmt"

// APIError is a non-2xx response from the Reddit API. The status code is
// preserved so callers can classify the failure (rate limit, auth, server).
type APIError struct {
	StatusCode int
	Body       string
}

// Error renders the status and a clipped response body.
func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("reddit API error (status %d): %s", e.StatusCode, body)
}

// IsRateLimited reports whether the response was an HTTP 429.
func (e *APIError) IsRateLimited() bool { return e.StatusCode == 429 }

// IsAuthFailure reports whether the response was an HTTP 401 or 403.
func (e *APIError) IsAuthFailure() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
