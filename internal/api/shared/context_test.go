package shared

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx), "a fresh context carries no trace ID")

	traced := SetTraceID(ctx)
	id := GetTraceID(traced)
	require.Len(t, id, 32, "trace IDs are 16 random bytes hex encoded")
	_, err := hex.DecodeString(id)
	require.NoError(t, err)

	// The parent context is untouched.
	assert.Empty(t, GetTraceID(ctx))
}

func TestGetTraceIDWrongValueType(t *testing.T) {
	t.Parallel()

	ctx := context.WithValue(context.Background(), TraceIDKey, 42)
	assert.Empty(t, GetTraceID(ctx), "non-string values read back as absent")
}

func TestGenerateTraceIDUniqueness(t *testing.T) {
	t.Parallel()

	const n = 500
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id := generateTraceID()
		require.Len(t, id, 32)
		assert.False(t, seen[id], "trace IDs must not repeat")
		seen[id] = true
	}
}

// drainedReader simulates an exhausted entropy source.
type drainedReader struct{}

func (drainedReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy unavailable")
}

// traceIDFromReader mirrors generateTraceID with an injectable entropy
// source, since crypto/rand's Reader cannot be swapped out directly.
func traceIDFromReader(r io.Reader) string {
	b := make([]byte, TraceIDLength)
	if n, err := r.Read(b); err != nil || n != TraceIDLength {
		return generateFallbackTraceID()
	}
	return hex.EncodeToString(b)
}

func TestTraceIDFallsBackWithoutEntropy(t *testing.T) {
	t.Parallel()

	for _, r := range []io.Reader{drainedReader{}, strings.NewReader("short")} {
		id := traceIDFromReader(r)
		assert.Len(t, id, 32, "the fallback keeps the ID shape")
		_, err := hex.DecodeString(id)
		assert.NoError(t, err)
	}
}

func TestFallbackTraceIDUniqueness(t *testing.T) {
	t.Parallel()

	const n = 50
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id := generateFallbackTraceID()
		require.Len(t, id, 32)
		assert.False(t, seen[id], "time-seeded fallback IDs must still differ")
		seen[id] = true

		// The fallback is time-seeded, so let the clock tick.
		time.Sleep(time.Millisecond)
	}
}
