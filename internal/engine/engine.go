// Package engine defines the boundary between the insight pipeline and
// external text-generation providers. Implementations live under
// internal/platform and are selected by provider name through a Registry.
package engine

import (
	"context"

	"github.com/auspexhq/insight-api/internal/domain"
)

// Completion is the raw result of a single provider call. The text is the
// provider's verbatim output; parsing it into structured insight fields is
// the caller's job, so a malformed completion can be attributed to the
// engine that produced it.
type Completion struct {
	// Text is the full concatenated text of the completion.
	Text string

	// Model is the concrete model version that served the request, as
	// reported by the provider. Falls back to the configured model name
	// when the provider does not report one.
	Model string

	// CompletionID is the provider-assigned identifier for this
	// completion, when available. Used for support escalations.
	CompletionID string

	// Usage carries the provider-reported token counts.
	Usage domain.TokenUsage

	// LatencyMs is the wall-clock duration of the call in milliseconds,
	// including any in-call retries.
	LatencyMs int64
}

// Engine generates completions from a single provider. Implementations must
// be safe for concurrent use and must honor context cancellation, returning
// promptly when the deadline passes.
type Engine interface {
	// Provider returns the provider key this engine serves, matching
	// domain.EngineConfig.Provider (for example "gemini" or "openai").
	Provider() string

	// Complete sends the prompt to the provider and returns its
	// completion. Returns ErrEmptyPrompt when prompt is empty, and wraps
	// ErrTransientFailure, ErrContentBlocked, or ErrInvalidResponse to
	// classify provider failures.
	Complete(ctx context.Context, prompt string, cfg domain.EngineConfig) (*Completion, error)
}
