package application

import "context"

// IdempotencyStore reserves client-supplied batch keys so that a retried
// submission is rejected instead of committed twice.
type IdempotencyStore interface {
	// TryReserve returns true if key was absent and is now reserved.
	TryReserve(ctx context.Context, key string) (bool, error)
}

// NoopIdempotency accepts every key. Used when IDEMPOTENCY_BACKEND is not redis.
type NoopIdempotency struct{}

func (NoopIdempotency) TryReserve(context.Context, string) (bool, error) { return true, nil }
