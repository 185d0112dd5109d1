// Package cache is a small key/value cache with per-entry TTL and prefix
// invalidation. The published recipe listing and the token blocklist sit on
// top of it.
//
// Two backends: Redis for deployments with more than one process, and an
// in-process map for development and tests. The server picks Redis when
// REDIS_ADDR is set.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is the key/value store behind the listing cache and the blocklist.
//
// A ttl of 0 means the entry never expires. Get returns ErrMiss for absent
// and expired keys alike, and any other error means the backend itself
// failed; callers treat that as a miss and log it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}
