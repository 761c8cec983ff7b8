package login

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/panelkit/simple-admin/pkg/audit"
	"github.com/panelkit/simple-admin/pkg/session"
	"github.com/panelkit/simple-admin/pkg/utils"
)

// csrfTokenBytes is the entropy behind each anti-forgery token (256 bits).
const csrfTokenBytes = 32

// CsrfManager issues and validates the per-session anti-forgery token. A
// session holds at most one live token at a time.
type CsrfManager struct {
	sessions      session.Repository
	auditRecorder *audit.Recorder
}

// NewCsrfManager creates a CSRF manager over the session repository.
func NewCsrfManager(sessions session.Repository, auditRecorder *audit.Recorder) *CsrfManager {
	return &CsrfManager{
		sessions:      sessions,
		auditRecorder: auditRecorder,
	}
}

// Issue returns the session's current token, minting one if none exists.
// Idempotent within a session until explicitly regenerated.
func (m *CsrfManager) Issue(ctx context.Context, sess *session.Session) (string, error) {
	if sess.CsrfToken == "" {
		sess.CsrfToken = utils.GenerateRandomString(csrfTokenBytes)
		if err := m.sessions.Save(ctx, sess); err != nil {
			return "", err
		}
	}
	return sess.CsrfToken, nil
}

// Regenerate replaces the session token. Callers typically regenerate after
// every form submission attempt to reduce the replay window.
func (m *CsrfManager) Regenerate(ctx context.Context, sess *session.Session) (string, error) {
	sess.CsrfToken = utils.GenerateRandomString(csrfTokenBytes)
	if err := m.sessions.Save(ctx, sess); err != nil {
		return "", err
	}
	return sess.CsrfToken, nil
}

// Verify compares the submitted token against the session's token in
// constant time. A mismatch never destroys the stored token, so a retried
// legitimate submission can still succeed.
//
// Note: the audit record includes the submitted and expected values, which
// can leak token material into logs. Operators should restrict access to the
// activity log accordingly.
func (m *CsrfManager) Verify(ctx context.Context, sess *session.Session, submitted string) bool {
	if sess.CsrfToken != "" && subtle.ConstantTimeCompare([]byte(sess.CsrfToken), []byte(submitted)) == 1 {
		return true
	}

	expected := sess.CsrfToken
	if expected == "" {
		expected = "Not Set"
	}
	m.auditRecorder.Activity(
		fmt.Sprintf("CSRF token validation failed. Provided: %s Session: %s", submitted, expected),
		sess.Username)
	return false
}
