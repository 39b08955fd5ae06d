package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/service"
	"github.com/auspexhq/insight-api/internal/service/auth"
	"github.com/auspexhq/insight-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{
			name:           "nil error",
			err:            nil,
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "expired token",
			err:            auth.ErrExpiredToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid token",
			err:            auth.ErrInvalidToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unauthorized domain error",
			err:            domain.ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "job not found",
			err:            service.ErrJobNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "wrapped store job not found",
			err:            fmt.Errorf("loading job: %w", store.ErrJobNotFound),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "insight not found",
			err:            service.ErrInsightNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "job in progress",
			err:            service.ErrJobInProgress,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "rate limited",
			err:            service.ErrRateLimited,
			expectedStatus: http.StatusTooManyRequests,
		},
		{
			name:           "dispatch failed",
			err:            service.ErrDispatchFailed,
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "validation failure",
			err:            domain.NewValidationError("subject", "is required", domain.ErrValidation),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid ID",
			err:            domain.ErrInvalidID,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown error",
			err:            errors.New("something broke"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expectedStatus, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "An unexpected error occurred",
		},
		{
			name:     "job in progress",
			err:      service.ErrJobInProgress,
			expected: "An insight job is already in progress",
		},
		{
			name:     "rate limited",
			err:      service.ErrRateLimited,
			expected: "Daily insight job limit reached",
		},
		{
			name:     "job not found",
			err:      service.ErrJobNotFound,
			expected: "Insight job not found",
		},
		{
			name:     "insight not found",
			err:      service.ErrInsightNotFound,
			expected: "Insight not found",
		},
		{
			name:     "dispatch failed",
			err:      service.ErrDispatchFailed,
			expected: "Insight job accepted but could not be scheduled; please retry",
		},
		{
			name:     "internal detail is not leaked",
			err:      errors.New("pq: connection refused host=db-internal"),
			expected: "An unexpected error occurred",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			msg := GetSafeErrorMessage(tc.err)
			assert.Equal(t, tc.expected, msg)
			if tc.err != nil {
				assert.NotContains(t, msg, "db-internal")
			}
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	t.Run("extracts the field from validator messages", func(t *testing.T) {
		t.Parallel()

		err := errors.New(
			"Key: 'CreateInsightRequest.Subject' Error:Field validation for 'Subject' failed on the 'required' tag",
		)
		msg := SanitizeValidationError(err)
		assert.Equal(t, "Invalid Subject: required field", msg)
	})

	t.Run("falls back to a generic message", func(t *testing.T) {
		t.Parallel()

		msg := SanitizeValidationError(errors.New("opaque failure"))
		assert.Equal(t, "Validation error", msg)
	})
}
