// Package mocks provides centralized mock implementations for testing.
//
// This package contains mock implementations of the store interfaces
// used throughout the application, facilitating consistent and DRY
// testing across the codebase. Instead of defining inline mocks in
// individual test files, these standardized mock implementations can
// be reused.
//
// Each mock follows the same shape: exported Fn fields override
// individual methods, and when no override is set a map-backed default
// models the real store's semantics, including conditional status
// transitions and uniqueness constraints. The defaults are safe for
// concurrent use, so races the database would arbitrate (admission
// against the one-active-job-per-user index, concurrent claims of the
// same job) can be exercised in plain unit tests.
//
// Usage:
//
//	import "github.com/auspexhq/insight-api/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    jobStore := mocks.NewMockJobStore()
//	    jobStore.MarkSucceededFn = func(ctx context.Context, id, artifactID uuid.UUID, payload domain.JobPayload) error {
//	        return errors.New("boom")
//	    }
//
//	    // Use the mock in your test...
//	}
//
// When adding a new mock to this package:
//  1. Create a new file named after the interface being mocked
//  2. Implement the mock struct with function fields for each interface method
//  3. Give the default implementation the same error semantics as the
//     real store so tests exercise realistic behavior
//  4. Update existing tests to use the centralized mock implementation
package mocks
