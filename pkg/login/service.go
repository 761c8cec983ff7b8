package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/panelkit/simple-admin/pkg/audit"
	"github.com/panelkit/simple-admin/pkg/iam"
	"github.com/panelkit/simple-admin/pkg/session"
)

// Service is the session authenticator: it verifies credentials against the
// user repository, establishes and tears down sessions, and answers
// role/permission questions for the access gate.
type Service struct {
	repo          iam.Repository
	sessions      session.Repository
	policy        *Policy
	auditRecorder *audit.Recorder
}

// NewService creates a new login service.
func NewService(repo iam.Repository, sessions session.Repository, policy *Policy, auditRecorder *audit.Recorder) *Service {
	if policy == nil {
		policy = NewPolicy()
	}
	return &Service{
		repo:          repo,
		sessions:      sessions,
		policy:        policy,
		auditRecorder: auditRecorder,
	}
}

// Login verifies the identifier/password pair and, on success, binds the
// user's identity to the session under a freshly rotated identifier.
//
// The identifier matches either the stored username or email, compared as
// stored (no normalization). Only active accounts may authenticate. The
// caller-facing result is a single boolean: "user not found" and "found but
// rejected" are deliberately indistinguishable to defeat user enumeration,
// though the audit trail records which case occurred. A non-nil error means
// the session store failed, not that the credentials were rejected; no
// session can be trusted without the store, so callers must treat it as
// fatal for the request rather than as a credential failure.
func (s *Service) Login(ctx context.Context, sess *session.Session, identifier, password string) (bool, error) {
	user, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, iam.ErrUserNotFound) {
			slog.Error("Failed looking up user", "err", err)
		}
		s.auditRecorder.Activity(
			fmt.Sprintf("Failed login attempt for: %s (User not found)", identifier),
			audit.UnknownActor)
		return false, nil
	}

	// bcrypt mismatch surfaces as an error; either way the attempt fails
	valid := false
	if user.Status == iam.StatusActive {
		if ok, err := iam.CheckPasswordHash(password, user.PasswordHash); err == nil {
			valid = ok
		}
	}

	if !valid {
		// User found, but password mismatch or inactive
		if err := s.repo.RecordLoginFailure(ctx, user.ID); err != nil {
			slog.Error("Failed recording login failure", "userId", user.ID, "err", err)
		}
		s.auditRecorder.Activity(
			fmt.Sprintf("Failed login attempt for: %s (User found, pass mismatch or inactive)", identifier),
			audit.UnknownActor)
		return false, nil
	}

	// Rotate the session identifier to prevent fixation
	if err := s.sessions.Rotate(ctx, sess); err != nil {
		slog.Error("Failed rotating session", "err", err)
		return false, fmt.Errorf("failed rotating session: %w", err)
	}

	sess.UserID = user.ID
	sess.Username = user.Username
	sess.Email = user.Email
	sess.Role = s.resolveRoleName(ctx, user)
	sess.LoggedInAt = time.Now()

	if err := s.sessions.Save(ctx, sess); err != nil {
		slog.Error("Failed saving session", "err", err)
		return false, fmt.Errorf("failed saving session: %w", err)
	}

	if err := s.repo.RecordLoginSuccess(ctx, user.ID); err != nil {
		slog.Error("Failed recording login success", "userId", user.ID, "err", err)
	}

	s.auditRecorder.Activity(
		fmt.Sprintf("User logged in: %s (Email: %s)", user.Username, user.Email),
		user.Username)
	return true, nil
}

func (s *Service) resolveRoleName(ctx context.Context, user iam.User) string {
	if user.RoleID == nil {
		return iam.DefaultRoleName
	}
	role, err := s.repo.GetRole(ctx, *user.RoleID)
	if err != nil {
		slog.Warn("Failed to resolve role at login", "roleId", *user.RoleID, "err", err)
		return iam.DefaultRoleName
	}
	return role.Name
}

// Logout tears down the session. Idempotent: with no authenticated identity
// it is a no-op other than logging "unknown user".
func (s *Service) Logout(ctx context.Context, sess *session.Session) error {
	actor := sess.Email
	if actor == "" {
		actor = sess.Username
	}
	if actor == "" {
		actor = "Unknown user"
	}
	s.auditRecorder.Activity(fmt.Sprintf("User logged out: %s", actor), actor)

	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return err
	}
	sess.ClearIdentity()
	return nil
}

// IsAuthenticated reports whether the session carries a user identity.
func (s *Service) IsAuthenticated(sess *session.Session) bool {
	return sess.IsAuthenticated()
}

// HasRole compares the required role against the session's denormalized role
// name, case-insensitively.
func (s *Service) HasRole(sess *session.Session, role string) bool {
	if sess == nil || sess.Role == "" {
		return false
	}
	return strings.EqualFold(sess.Role, role)
}

// HasPermission evaluates the permission against the session role via the
// policy table.
func (s *Service) HasPermission(sess *session.Session, permission Permission) bool {
	if !sess.IsAuthenticated() {
		return false
	}
	return s.policy.Allowed(Role(sess.Role), permission)
}
