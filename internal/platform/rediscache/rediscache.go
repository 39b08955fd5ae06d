// Package rediscache drops the per-user derived views that a completed
// insight job makes stale. Downstream dashboard services cache those
// views under well-known keys; the pipeline only ever deletes them.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTimeout = 2 * time.Second

func dashboardKey(userID uuid.UUID) string { return "insight:dashboard:" + userID.String() }
func latestKey(userID uuid.UUID) string    { return "insight:latest:" + userID.String() }

// NewClient creates a Redis client with timeouts sized for cache
// traffic.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// deleter is the slice of the redis client the invalidator needs.
// *redis.Client satisfies it.
type deleter interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Invalidator deletes a user's cached views. Callers treat failures as
// best-effort; the views expire on their own TTL anyway.
type Invalidator struct {
	client  deleter
	timeout time.Duration
	logger  *slog.Logger
}

// NewInvalidator creates an Invalidator over the given client. A
// non-positive timeout falls back to the default.
func NewInvalidator(client deleter, timeout time.Duration, log *slog.Logger) (*Invalidator, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Invalidator{
		client:  client,
		timeout: timeout,
		logger:  log.With(slog.String("component", "cache_invalidator")),
	}, nil
}

// Invalidate deletes the user's derived view keys, bounded by the
// invalidator's timeout so a slow cache cannot hold up job completion.
func (i *Invalidator) Invalidate(ctx context.Context, userID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	keys := []string{dashboardKey(userID), latestKey(userID)}
	deleted, err := i.client.Del(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("redis delete user views for %s: %w", userID, err)
	}

	i.logger.Debug("user views invalidated",
		slog.String("user_id", userID.String()),
		slog.Int64("deleted", deleted))
	return nil
}
