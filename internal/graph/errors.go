package graph

import (
	"net/http"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
)

// WrapStatus converts an HTTP status code to the engine's error taxonomy.
// Returns nil for success statuses.
func WrapStatus(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return domain.ErrAuthFailed
	case http.StatusForbidden:
		return domain.ErrPermissionDenied
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusTooManyRequests:
		return domain.ErrThrottled
	default:
		if statusCode >= 500 {
			return domain.ErrTransient
		}
		return nil
	}
}

// IsRetryable reports whether a status indicates a transient condition
// worth retrying: throttling, or a server-side outage.
func IsRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}

// IsThrottled reports whether a status indicates rate limiting.
func IsThrottled(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests
}
