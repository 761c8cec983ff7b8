package session

import (
	"time"

	"github.com/panelkit/simple-admin/pkg/utils"
)

// sessionIDBytes is the entropy, in bytes, behind every session identifier.
const sessionIDBytes = 32

// Session is a server-side authenticated context correlated to a client via
// a rotating identifier carried in a cookie. The role name is denormalized at
// login time and is not refreshed if the role changes mid-session.
type Session struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CsrfToken   string    `json:"csrf_token"`
	RedirectURL string    `json:"redirect_url"`
	LoggedInAt  time.Time `json:"logged_in_at"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// New creates an anonymous session with a fresh identifier and an absolute
// expiry. Expiry is fixed at creation and not renewed on activity.
func New(ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        utils.GenerateRandomString(sessionIDBytes),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsAuthenticated reports whether a user identity is bound to the session.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != 0
}

// IsExpired reports whether the session has passed its absolute expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ClearIdentity removes all user attributes, leaving an anonymous shell.
func (s *Session) ClearIdentity() {
	s.UserID = 0
	s.Username = ""
	s.Email = ""
	s.Role = ""
	s.CsrfToken = ""
	s.RedirectURL = ""
	s.LoggedInAt = time.Time{}
}
