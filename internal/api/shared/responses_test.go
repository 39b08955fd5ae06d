package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureDefaultLogger swaps slog's default logger for one writing to
// the returned builder and restores it when the test ends.
func captureDefaultLogger(t *testing.T) *strings.Builder {
	t.Helper()

	var buf strings.Builder
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestRespondWithJSON(t *testing.T) {
	t.Run("job status payload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/insights/jobs/abc", nil)
		w := httptest.NewRecorder()

		RespondWithJSON(w, req, http.StatusAccepted, map[string]interface{}{
			"job_id": "abc",
			"status": "queued",
		})

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "abc", body["job_id"])
		assert.Equal(t, "queued", body["status"])
	})

	t.Run("nil payload encodes as null", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/insights/jobs/abc", nil)
		w := httptest.NewRecorder()

		RespondWithJSON(w, req, http.StatusOK, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "null\n", w.Body.String())
	})
}

// cyclicPayload cannot be JSON encoded.
type cyclicPayload struct {
	Self *cyclicPayload
}

func TestRespondWithJSONEncodingFailureIsLogged(t *testing.T) {
	logs := captureDefaultLogger(t)

	req := httptest.NewRequest(http.MethodGet, "/api/insights/jobs/abc", nil)
	w := httptest.NewRecorder()

	payload := &cyclicPayload{}
	payload.Self = payload
	RespondWithJSON(w, req, http.StatusOK, payload)

	// The status line is already written, so the failure only shows up
	// in the logs.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, logs.String(), "failed to encode JSON response")
}

func TestRespondWithError(t *testing.T) {
	t.Run("carries the request trace ID", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), TraceIDKey, "trace-9f2c")
		req := httptest.NewRequest(http.MethodPost, "/api/insights", nil).WithContext(ctx)
		w := httptest.NewRecorder()

		RespondWithError(w, req, http.StatusConflict, "An insight job is already in progress")

		assert.Equal(t, http.StatusConflict, w.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "An insight job is already in progress", body.Error)
		assert.Equal(t, "trace-9f2c", body.TraceID)
	})

	t.Run("omits the trace ID when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/insights", nil)
		w := httptest.NewRecorder()

		RespondWithError(w, req, http.StatusUnauthorized, "Authentication required")

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Authentication required", body.Error)
		assert.Empty(t, body.TraceID)
	})
}

func TestRespondWithErrorAndLog(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		message   string
		err       error
		wantLevel string
		elevate   bool
	}{
		{
			name:      "5xx logs at ERROR",
			status:    http.StatusServiceUnavailable,
			message:   "Service temporarily unavailable",
			err:       errors.New("task queue is full"),
			wantLevel: "ERROR",
		},
		{
			name:      "4xx logs at DEBUG by default",
			status:    http.StatusBadRequest,
			message:   "Invalid request format",
			err:       errors.New("subject cannot be empty"),
			wantLevel: "DEBUG",
		},
		{
			name:      "4xx elevates to WARN on request",
			status:    http.StatusConflict,
			message:   "An insight job is already in progress",
			err:       errors.New("active job exists for user"),
			wantLevel: "WARN",
			elevate:   true,
		},
		{
			name:      "429 always logs at WARN",
			status:    http.StatusTooManyRequests,
			message:   "Daily insight quota exceeded",
			err:       errors.New("quota of 10 reached"),
			wantLevel: "WARN",
		},
		{
			name:      "3xx logs at DEBUG",
			status:    http.StatusMovedPermanently,
			message:   "Moved",
			err:       errors.New("legacy route"),
			wantLevel: "DEBUG",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs := captureDefaultLogger(t)

			ctx := context.WithValue(context.Background(), TraceIDKey, "trace-9f2c")
			req := httptest.NewRequest(http.MethodPost, "/api/insights", nil).WithContext(ctx)
			w := httptest.NewRecorder()

			if tc.elevate {
				RespondWithErrorAndLog(w, req, tc.status, tc.message, tc.err, WithElevatedLogLevel())
			} else {
				RespondWithErrorAndLog(w, req, tc.status, tc.message, tc.err)
			}

			assert.Equal(t, tc.status, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.message, body.Error)
			assert.Equal(t, "trace-9f2c", body.TraceID)

			out := logs.String()
			assert.Contains(t, out, tc.wantLevel)
			assert.Contains(t, out, tc.message)
			assert.Contains(t, out, "trace_id=trace-9f2c")
			// The raw error never reaches the response; the log carries
			// its type for debugging.
			assert.Contains(t, out, "error_type=")
			assert.NotContains(t, w.Body.String(), tc.err.Error())
		})
	}
}

func TestWithElevatedLogLevel(t *testing.T) {
	t.Parallel()

	opts := responseOptions{}
	WithElevatedLogLevel()(&opts)
	assert.True(t, opts.elevateLogLevel)
}
