package engine

import "errors"

// Error types for engine operations. Callers should use errors.Is to check
// against these sentinels, as implementations wrap them with provider
// detail.
var (
	// ErrEmptyPrompt indicates the caller passed an empty prompt.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrInvalidConfig indicates the engine was constructed or invoked
	// with an invalid configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrInvalidResponse indicates the provider returned a response that
	// cannot be used, such as an empty completion or a malformed body.
	ErrInvalidResponse = errors.New("invalid response from provider")

	// ErrContentBlocked indicates the provider refused to complete the
	// prompt because of its safety filters. Not retryable.
	ErrContentBlocked = errors.New("content blocked by provider safety filters")

	// ErrTransientFailure indicates a temporary provider problem such as
	// rate limiting or a 5xx response. Retryable.
	ErrTransientFailure = errors.New("transient provider failure")

	// ErrUnknownProvider indicates no engine is registered for the
	// requested provider name.
	ErrUnknownProvider = errors.New("unknown engine provider")
)
