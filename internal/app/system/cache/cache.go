// Package cache is the key-value store with per-key expiry that backs
// short-lived data such as invitation tokens. Redis serves production;
// Memory serves tests and single-process development.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Memory after Close.
var ErrClosed = errors.New("cache closed")

// Cache is a byte-oriented key-value store with per-key TTLs.
// Get reports found=false for a missing or expired key; err is reserved
// for transport failures.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
