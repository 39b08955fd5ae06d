package rediscache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCacheLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDeleter captures Del calls and plays back a scripted result.
type fakeDeleter struct {
	keys    []string
	deleted int64
	err     error
	ctxErr  error
}

func (f *fakeDeleter) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.keys = append(f.keys, keys...)
	f.ctxErr = nil
	if _, ok := ctx.Deadline(); !ok {
		f.ctxErr = errors.New("no deadline on context")
	}
	return redis.NewIntResult(f.deleted, f.err)
}

func TestNewInvalidatorValidation(t *testing.T) {
	t.Parallel()

	_, err := NewInvalidator(nil, time.Second, newTestCacheLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis client cannot be nil")

	_, err = NewInvalidator(&fakeDeleter{}, time.Second, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger cannot be nil")
}

func TestInvalidateDeletesUserViewKeys(t *testing.T) {
	t.Parallel()

	fake := &fakeDeleter{deleted: 2}
	inv, err := NewInvalidator(fake, time.Second, newTestCacheLogger())
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, inv.Invalidate(context.Background(), userID))

	assert.Equal(t, []string{
		"insight:dashboard:" + userID.String(),
		"insight:latest:" + userID.String(),
	}, fake.keys)
	assert.NoError(t, fake.ctxErr, "invalidation must carry a deadline")
}

func TestInvalidatePropagatesRedisError(t *testing.T) {
	t.Parallel()

	fake := &fakeDeleter{err: errors.New("connection refused")}
	inv, err := NewInvalidator(fake, time.Second, newTestCacheLogger())
	require.NoError(t, err)

	err = inv.Invalidate(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis delete user views")
}

func TestNewInvalidatorDefaultTimeout(t *testing.T) {
	t.Parallel()

	inv, err := NewInvalidator(&fakeDeleter{}, 0, newTestCacheLogger())
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, inv.timeout)
}
