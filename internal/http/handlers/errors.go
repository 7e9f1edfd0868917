// HTTP-layer error codes shared by all admin API endpoints. Codes are
// lowercase snake_case and stable; clients branch on them rather than on
// message text.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
