package service

import "errors"

// Sentinel errors for expected service conditions. Callers check them
// with errors.Is; the API layer maps them to HTTP status codes.
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in ServiceError
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrJobInProgress indicates the user already has a queued or running
	// insight job. API layer should map this to HTTP 409 Conflict.
	ErrJobInProgress = errors.New("an insight job is already in progress")

	// ErrRateLimited indicates the user has reached the daily job quota.
	// API layer should map this to HTTP 429 Too Many Requests.
	ErrRateLimited = errors.New("daily insight job limit reached")

	// ErrDispatchFailed indicates the job was persisted but its task could
	// not be enqueued. The job stays queued for a later dispatch attempt.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrDispatchFailed = errors.New("insight job accepted but task dispatch failed")

	// ErrJobNotFound indicates the job does not exist or is not visible to
	// the requesting user. API layer should map this to HTTP 404 Not Found.
	ErrJobNotFound = errors.New("insight job not found")

	// ErrInsightNotFound indicates the artifact does not exist or is not
	// visible to the requesting user. API layer should map this to
	// HTTP 404 Not Found.
	ErrInsightNotFound = errors.New("insight not found")
)
