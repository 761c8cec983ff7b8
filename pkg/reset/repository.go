package reset

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	// ErrTokenInvalid covers absent, expired and already-consumed tokens;
	// callers are not told which.
	ErrTokenInvalid = errors.New("reset token invalid or expired")
)

// PasswordReset is a one-time, time-boxed credential-recovery grant. Only the
// hash of the token is ever persisted; the plaintext form is delivered
// out-of-band and discarded.
type PasswordReset struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTokenParams contains parameters for persisting a new reset grant.
type CreateTokenParams struct {
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
}

// Repository defines the interface for password reset token data access
type Repository interface {
	// Create persists a new token hash
	Create(ctx context.Context, arg CreateTokenParams) error

	// FindActiveByHash returns the unused token row matching the hash,
	// regardless of expiry; expiry is the caller's concern
	FindActiveByHash(ctx context.Context, tokenHash string) (PasswordReset, error)

	// Consume atomically marks the token used, guarded by "not yet used and
	// not expired", and returns the owning user id. Of two concurrent calls
	// for the same token, exactly one succeeds; the other gets
	// ErrTokenInvalid. Implementations must make the validity check and the
	// write a single conditional mutation, not a read-then-write pair.
	Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error)

	// MarkUsed idempotently marks a token row as used
	MarkUsed(ctx context.Context, tokenHash string) error

	// InvalidateAllForUser marks all of a user's pending tokens used
	InvalidateAllForUser(ctx context.Context, userID int64) error
}
