package ports

import (
	"context"
	"time"
)

// Store keeps the short lived state that must be shared between instances:
// invalidated refresh tokens and consumed challenge nonces.
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)

	// ConsumeNonce records nonce as used for ttl. It reports false when the
	// nonce was already consumed.
	ConsumeNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}
