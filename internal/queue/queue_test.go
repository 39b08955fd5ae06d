package queue

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/auspexhq/insight-api/internal/domain"
)

func validRetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts:       3,
		MinBackoffSeconds: 1,
		MaxBackoffSeconds: 10,
	}
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		task    Task
		wantErr error
	}{
		{
			name:    "valid task",
			task:    Task{Name: "insight-generate-abc", Retry: validRetryPolicy()},
			wantErr: nil,
		},
		{
			name:    "empty name",
			task:    Task{Name: "", Retry: validRetryPolicy()},
			wantErr: domain.ErrEmptyTaskName,
		},
		{
			name:    "invalid retry policy",
			task:    Task{Name: "insight-generate-abc", Retry: domain.RetryPolicy{MaxAttempts: 0}},
			wantErr: domain.ErrInvalidRetryPolicy,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.task.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDispositionConstructors(t *testing.T) {
	t.Parallel()

	cause := errors.New("engine unavailable")

	success := Success()
	assert.Equal(t, DispositionSuccess, success.Kind)
	assert.NoError(t, success.Err)

	retry := Retry(cause)
	assert.Equal(t, DispositionRetry, retry.Kind)
	assert.Equal(t, cause, retry.Err)

	terminal := Terminal(cause)
	assert.Equal(t, DispositionTerminal, terminal.Kind)
	assert.Equal(t, cause, terminal.Err)
}

func TestDispositionKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "success", DispositionSuccess.String())
	assert.Equal(t, "retry", DispositionRetry.String())
	assert.Equal(t, "terminal", DispositionTerminal.String())
	assert.Equal(t, "unknown", DispositionKind(42).String())
}

func TestTaskName(t *testing.T) {
	t.Parallel()

	jobID := uuid.MustParse("3b1e6f0a-9d6c-4e41-8f2a-0c5d9b7e1a23")
	assert.Equal(t, "insight-generate-3b1e6f0a-9d6c-4e41-8f2a-0c5d9b7e1a23", TaskName(jobID))
}
