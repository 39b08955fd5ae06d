package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/auspexhq/insight-api/internal/api/shared"
	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/service"
	"github.com/auspexhq/insight-api/internal/service/auth"
	"github.com/auspexhq/insight-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, service.ErrInsightNotFound),
		errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrInsightNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, service.ErrJobInProgress):
		return http.StatusConflict

	// Quota errors
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests

	// The job was admitted but its task could not be scheduled; the
	// client may retry the request.
	case errors.Is(err, service.ErrDispatchFailed):
		return http.StatusServiceUnavailable

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	// Handle nil error
	if err == nil {
		return "An unexpected error occurred"
	}

	// Map specific error types to user-friendly messages
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"

	case errors.Is(err, auth.ErrMissingToken):
		return "Authorization required"

	case errors.Is(err, domain.ErrUnauthorized):
		return "Unauthorized"

	// Not found errors
	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrJobNotFound):
		return "Insight job not found"

	case errors.Is(err, service.ErrInsightNotFound),
		errors.Is(err, store.ErrInsightNotFound):
		return "Insight not found"

	// Conflict errors
	case errors.Is(err, service.ErrJobInProgress):
		return "An insight job is already in progress"

	// Quota errors
	case errors.Is(err, service.ErrRateLimited):
		return "Daily insight job limit reached"

	case errors.Is(err, service.ErrDispatchFailed):
		return "Insight job accepted but could not be scheduled; please retry"

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidID):
		return "Invalid request"

	// Default case for unknown errors
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Check if this is likely a validation error message
	if strings.Contains(errMsg, "Field validation") {
		// Extract the field name and validation tag
		// Example format: "Key: 'CreateInsightRequest.Subject' Error:Field validation for 'Subject' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			// Further split to get just the field validation part
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				// Create a cleaner error message
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	// Fall back to a generic validation error message
	return "Validation error"
}

// HandleAPIError maps an error to an HTTP status code and a safe
// client-facing message, logs the underlying cause, and writes the
// response. When overrideMessage is non-empty it replaces the derived
// safe message. Validation errors are reported as 400s with a sanitized
// field-level message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, overrideMessage string) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		message := overrideMessage
		if message == "" {
			message = validationErr.Error()
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, message, err)
		return
	}

	statusCode := MapErrorToStatusCode(err)
	message := overrideMessage
	if message == "" {
		message = GetSafeErrorMessage(err)
	}

	shared.RespondWithErrorAndLog(w, r, statusCode, message, err)
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
