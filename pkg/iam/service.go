package iam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/panelkit/simple-admin/pkg/audit"
	"github.com/panelkit/simple-admin/pkg/notification"
)

// Validation errors surfaced by the administrative user lifecycle. They are
// ordinary failure results, not fatal conditions.
var (
	ErrMissingFields     = errors.New("missing required fields")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrSelfDelete        = errors.New("cannot delete own account")
)

// DefaultRoleName is the session role for users with no role assigned.
const DefaultRoleName = "default"

// Service provides administrative user lifecycle operations
type Service struct {
	repo                Repository
	auditRecorder       *audit.Recorder
	notificationManager *notification.NotificationManager
}

// NewService creates a new IAM service. The notification manager is optional;
// when present a welcome notice is sent on user creation.
func NewService(repo Repository, auditRecorder *audit.Recorder, notificationManager *notification.NotificationManager) *Service {
	return &Service{
		repo:                repo,
		auditRecorder:       auditRecorder,
		notificationManager: notificationManager,
	}
}

// Repository exposes the underlying repository for collaborating services.
func (s *Service) Repository() Repository {
	return s.repo
}

// CreateUser validates input, enforces username/email uniqueness, hashes the
// password and inserts the new user. Returns the new user's id.
func (s *Service) CreateUser(ctx context.Context, username, email, password string, roleID *int64, status Status) (int64, error) {
	if username == "" || email == "" || password == "" {
		s.auditRecorder.Activity("User creation failed: missing required fields", audit.UnknownActor)
		return 0, ErrMissingFields
	}
	if status == "" {
		status = StatusActive
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		s.auditRecorder.Activity(fmt.Sprintf("User creation failed: email '%s' already exists", email), audit.UnknownActor)
		return 0, ErrDuplicateEmail
	}
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		s.auditRecorder.Activity(fmt.Sprintf("User creation failed: username '%s' already exists", username), audit.UnknownActor)
		return 0, ErrDuplicateUsername
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		RoleID:       roleID,
		Status:       status,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditRecorder.Activity(fmt.Sprintf("User created successfully: %s (ID: %d)", username, user.ID), username)
	s.sendWelcomeNotice(user)
	return user.ID, nil
}

// sendWelcomeNotice delivers the welcome email. Failure is non-fatal.
func (s *Service) sendWelcomeNotice(user User) {
	if s.notificationManager == nil {
		return
	}
	loginLink := fmt.Sprintf("%s/login", s.notificationManager.BaseUrl)
	err := s.notificationManager.Send(notification.WelcomeNotice, notification.NotificationData{
		To: user.Email,
		Data: map[string]string{
			"Username": user.Username,
			"Link":     loginLink,
		},
	})
	if err != nil {
		slog.Error("Failed to send welcome email", "email", user.Email, "err", err)
	}
}

// UpdateUserRequest carries the partial field set for an update. Nil fields
// are left untouched. A non-empty Password is re-hashed; an empty one is
// ignored.
type UpdateUserRequest struct {
	Username  *string
	Email     *string
	Password  string
	RoleID    *int64
	ClearRole bool
	Status    *Status
}

// UpdateUser applies a partial update, re-checking uniqueness of username and
// email against all other rows.
func (s *Service) UpdateUser(ctx context.Context, userID int64, req UpdateUserRequest) error {
	params := UpdateUserParams{ID: userID}

	if req.Username != nil {
		existing, err := s.repo.FindByUsername(ctx, *req.Username)
		if err == nil && existing.ID != userID {
			s.auditRecorder.Activity(fmt.Sprintf("User update failed for ID %d: username '%s' already taken", userID, *req.Username), audit.UnknownActor)
			return ErrDuplicateUsername
		}
		params.Username = req.Username
	}
	if req.Email != nil {
		existing, err := s.repo.FindByEmail(ctx, *req.Email)
		if err == nil && existing.ID != userID {
			s.auditRecorder.Activity(fmt.Sprintf("User update failed for ID %d: email '%s' already taken", userID, *req.Email), audit.UnknownActor)
			return ErrDuplicateEmail
		}
		params.Email = req.Email
	}
	if req.Password != "" {
		passwordHash, err := HashPassword(req.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		params.PasswordHash = &passwordHash
	}
	if req.RoleID != nil || req.ClearRole {
		roleID := toNullInt64(req.RoleID)
		params.RoleID = &roleID
	}
	if req.Status != nil {
		params.Status = req.Status
	}

	if err := s.repo.UpdateUser(ctx, params); err != nil {
		s.auditRecorder.Activity(fmt.Sprintf("User update failed or no changes made: ID %d", userID), audit.UnknownActor)
		return err
	}

	s.auditRecorder.Activity(fmt.Sprintf("User updated successfully: ID %d", userID), audit.UnknownActor)
	return nil
}

// DeleteUser removes a user. A user may never delete their own account;
// actorID is the id of the caller's session identity.
func (s *Service) DeleteUser(ctx context.Context, userID, actorID int64) error {
	if userID == actorID {
		s.auditRecorder.Activity(fmt.Sprintf("User deletion failed: attempt to delete own account (ID: %d)", userID), fmt.Sprintf("%d", actorID))
		return ErrSelfDelete
	}

	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		s.auditRecorder.Activity(fmt.Sprintf("User deletion failed for ID: %d", userID), fmt.Sprintf("%d", actorID))
		return err
	}

	s.auditRecorder.Activity(fmt.Sprintf("User deleted successfully: ID %d", userID), fmt.Sprintf("%d", actorID))
	return nil
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, userID int64) (User, error) {
	return s.repo.GetUser(ctx, userID)
}

// FindUsers lists all users.
func (s *Service) FindUsers(ctx context.Context) ([]User, error) {
	return s.repo.FindUsers(ctx)
}

// ResolveRoleName returns the user's role name, or DefaultRoleName when the
// user has no role assigned.
func (s *Service) ResolveRoleName(ctx context.Context, user User) string {
	if user.RoleID == nil {
		return DefaultRoleName
	}
	role, err := s.repo.GetRole(ctx, *user.RoleID)
	if err != nil {
		slog.Warn("Failed to resolve role", "roleId", *user.RoleID, "err", err)
		return DefaultRoleName
	}
	return role.Name
}
