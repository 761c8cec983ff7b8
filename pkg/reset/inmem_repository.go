package reset

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]PasswordReset // keyed by token hash
	nextID int64
	now    func() time.Time
}

// NewInMemoryRepository creates a new in-memory reset token repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		tokens: make(map[string]PasswordReset),
		now:    time.Now,
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, arg CreateTokenParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.tokens[arg.TokenHash] = PasswordReset{
		ID:        r.nextID,
		UserID:    arg.UserID,
		TokenHash: arg.TokenHash,
		ExpiresAt: arg.ExpiresAt,
		CreatedAt: r.now(),
	}
	return nil
}

func (r *InMemoryRepository) FindActiveByHash(ctx context.Context, tokenHash string) (PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[tokenHash]
	if !ok || token.Used {
		return PasswordReset{}, ErrTokenInvalid
	}
	return token, nil
}

// Consume holds the lock across check and write, the in-memory equivalent of
// a single conditional UPDATE.
func (r *InMemoryRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[tokenHash]
	if !ok || token.Used || !now.Before(token.ExpiresAt) {
		return 0, ErrTokenInvalid
	}

	token.Used = true
	r.tokens[tokenHash] = token
	return token.UserID, nil
}

func (r *InMemoryRepository) MarkUsed(ctx context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil // Idempotent
	}
	token.Used = true
	r.tokens[tokenHash] = token
	return nil
}

func (r *InMemoryRepository) InvalidateAllForUser(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, token := range r.tokens {
		if token.UserID == userID && !token.Used {
			token.Used = true
			r.tokens[hash] = token
		}
	}
	return nil
}
