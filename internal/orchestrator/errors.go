package orchestrator

import (
	"errors"
	"fmt"
)

// ErrEngineCount indicates Generate was called with a config list that is
// not the primary/secondary pair the pipeline stores in every job payload.
var ErrEngineCount = errors.New("orchestration requires exactly two engine configs")

// OrchestrationError reports that every engine failed during one
// generation attempt. Err aggregates the per-engine causes.
type OrchestrationError struct {
	Err error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("all engines failed: %v", e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}
