package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panelkit/simple-admin/pkg/utils"
)

// ErrSessionNotFound is returned when no live session matches the identifier.
var ErrSessionNotFound = errors.New("session not found")

// Repository defines the interface for session data access
type Repository interface {
	// Get a live session by ID; expired sessions are treated as absent
	Get(ctx context.Context, id string) (*Session, error)

	// Save creates or updates a session
	Save(ctx context.Context, sess *Session) error

	// Delete removes a session by ID
	Delete(ctx context.Context, id string) error

	// Rotate issues a fresh identifier for the session, invalidating the old
	// one. Used after authentication to defeat session fixation.
	Rotate(ctx context.Context, sess *Session) error

	// DeleteExpired removes expired sessions (for maintenance)
	DeleteExpired(ctx context.Context) error
}

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory session repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.IsExpired(r.now()) {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	copy := sess
	return &copy, nil
}

func (r *InMemoryRepository) Save(ctx context.Context, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sess.ID] = *sess
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

func (r *InMemoryRepository) Rotate(ctx context.Context, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sess.ID)
	sess.ID = utils.GenerateRandomString(sessionIDBytes)
	r.sessions[sess.ID] = *sess
	return nil
}

func (r *InMemoryRepository) DeleteExpired(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, sess := range r.sessions {
		if sess.IsExpired(now) {
			delete(r.sessions, id)
		}
	}
	return nil
}
