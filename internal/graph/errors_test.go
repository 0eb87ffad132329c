package graph

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
)

func TestWrapStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{status: http.StatusOK, want: nil},
		{status: http.StatusCreated, want: nil},
		{status: http.StatusUnauthorized, want: domain.ErrAuthFailed},
		{status: http.StatusForbidden, want: domain.ErrPermissionDenied},
		{status: http.StatusNotFound, want: domain.ErrNotFound},
		{status: http.StatusTooManyRequests, want: domain.ErrThrottled},
		{status: http.StatusInternalServerError, want: domain.ErrTransient},
		{status: http.StatusBadGateway, want: domain.ErrTransient},
		{status: http.StatusBadRequest, want: nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, WrapStatus(tt.status), "status %d", tt.status)
	}
}

func TestIsRetryable(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsRetryable(status), "status %d", status)
	}
	for _, status := range []int{200, 400, 401, 403, 404} {
		assert.False(t, IsRetryable(status), "status %d", status)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 2, retryAfterSeconds("2"))
	assert.Equal(t, 30, retryAfterSeconds(" 30 "))
	assert.Zero(t, retryAfterSeconds(""))
	assert.Zero(t, retryAfterSeconds("-5"))
	assert.Zero(t, retryAfterSeconds("Wed, 21 Oct 2026 07:28:00 GMT"))
}
