package adapter

import (
	"context"
	"time"
)

// EventDeduper claims provider event ids so duplicate deliveries can be skipped.
type EventDeduper interface {
	// Claim returns true when key was not seen within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so a redelivery is processed again.
	Release(ctx context.Context, key string) error
}

// RateLimiter counts hits per key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
