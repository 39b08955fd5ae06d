package domain

import (
	"errors"
	"time"
)

// Common validation errors for EngineConfig
var (
	ErrEmptyEngineID        = errors.New("engine ID cannot be empty")
	ErrEmptyEngineProvider  = errors.New("engine provider cannot be empty")
	ErrEmptyEngineModel     = errors.New("engine model cannot be empty")
	ErrInvalidEngineTimeout = errors.New("engine timeout must be positive")
)

// EngineConfig describes one text-generation engine invocation target:
// which provider and model to call, how long to wait, and the token
// rates used to derive per-call cost. Jobs persist a snapshot of the
// configs they were admitted with.
type EngineConfig struct {
	ID                  string  `json:"id"`
	Provider            string  `json:"provider"`
	Model               string  `json:"model"`
	TimeoutSeconds      int     `json:"timeout_seconds"`
	Temperature         float64 `json:"temperature"`
	MaxOutputTokens     int     `json:"max_output_tokens"`
	PromptCostPer1K     float64 `json:"prompt_cost_per_1k"`
	CompletionCostPer1K float64 `json:"completion_cost_per_1k"`
}

// Validate checks if the EngineConfig has valid data.
func (c EngineConfig) Validate() error {
	if c.ID == "" {
		return ErrEmptyEngineID
	}

	if c.Provider == "" {
		return ErrEmptyEngineProvider
	}

	if c.Model == "" {
		return ErrEmptyEngineModel
	}

	if c.TimeoutSeconds <= 0 {
		return ErrInvalidEngineTimeout
	}

	return nil
}

// Timeout returns the per-invocation deadline as a duration.
func (c EngineConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Cost computes the USD cost of a completion from its token usage and
// this config's per-1K rates.
func (c EngineConfig) Cost(usage TokenUsage) float64 {
	return c.PromptCostPer1K*float64(usage.PromptTokens)/1000 +
		c.CompletionCostPer1K*float64(usage.CompletionTokens)/1000
}
