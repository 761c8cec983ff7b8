package session

import (
	"context"
	"net/http"
	"time"
)

// Config carries the session cookie settings. Cookie attributes are
// deployment configuration, not part of the auth core.
type Config struct {
	CookieName string
	TTL        time.Duration
	HttpOnly   bool
	Secure     bool
}

// DefaultConfig returns the session settings used when none are provided.
func DefaultConfig() Config {
	return Config{
		CookieName: "admin_session",
		TTL:        7 * 24 * time.Hour,
		HttpOnly:   true,
		Secure:     false,
	}
}

// Manager binds the session repository to the cookie transport.
type Manager struct {
	repo    Repository
	cookies CookieSetter
	config  Config
}

// NewManager creates a session manager over the given repository.
func NewManager(repo Repository, config Config) *Manager {
	if config.CookieName == "" {
		config.CookieName = DefaultConfig().CookieName
	}
	if config.TTL == 0 {
		config.TTL = DefaultConfig().TTL
	}
	return &Manager{
		repo:    repo,
		cookies: NewCookieSetter(config.HttpOnly, config.Secure),
		config:  config,
	}
}

// Repository exposes the underlying session repository.
func (m *Manager) Repository() Repository {
	return m.repo
}

// Current returns the live session identified by the request cookie, or
// ErrSessionNotFound when the cookie is absent, stale or expired.
func (m *Manager) Current(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.config.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrSessionNotFound
	}
	return m.repo.Get(ctx, cookie.Value)
}

// GetOrCreate returns the request's session, creating an anonymous one and
// issuing its cookie when none exists.
func (m *Manager) GetOrCreate(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	sess, err := m.Current(ctx, r)
	if err == nil {
		return sess, nil
	}

	sess = New(m.config.TTL)
	if err := m.repo.Save(ctx, sess); err != nil {
		return nil, err
	}
	m.cookies.SetCookie(w, m.config.CookieName, sess.ID, sess.ExpiresAt)
	return sess, nil
}

// Rotate issues a fresh session identifier and re-issues the cookie.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if err := m.repo.Rotate(ctx, sess); err != nil {
		return err
	}
	return m.cookies.SetCookie(w, m.config.CookieName, sess.ID, sess.ExpiresAt)
}

// WriteCookie re-issues the session cookie for the session's current ID,
// used after an out-of-band identifier rotation.
func (m *Manager) WriteCookie(w http.ResponseWriter, sess *Session) error {
	return m.cookies.SetCookie(w, m.config.CookieName, sess.ID, sess.ExpiresAt)
}

// Save persists session attribute changes.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	return m.repo.Save(ctx, sess)
}

// Destroy removes the session server-side and invalidates the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess != nil {
		if err := m.repo.Delete(ctx, sess.ID); err != nil {
			return err
		}
		sess.ClearIdentity()
	}
	return m.cookies.ClearCookie(w, m.config.CookieName)
}
