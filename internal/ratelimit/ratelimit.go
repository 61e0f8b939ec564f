// Package ratelimit provides a pluggable rate limiting interface.
//
// Dispatch and signal writes are the endpoints worth protecting: a runaway
// dashboard retry loop must not fan out into an unbounded stream of agent
// tasks. The in-memory token bucket (MemoryLimiter) covers a single
// instance; the Limiter interface is the contract for anything stronger.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. The key is opaque;
	// callers construct it (e.g. "dispatch:<ip>"). An error signals a
	// limiter malfunction and callers should fail open rather than
	// blocking traffic.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
