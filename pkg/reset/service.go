package reset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panelkit/simple-admin/pkg/audit"
	"github.com/panelkit/simple-admin/pkg/iam"
	"github.com/panelkit/simple-admin/pkg/notification"
	"github.com/panelkit/simple-admin/pkg/utils"
)

const (
	// resetTokenBytes is the entropy behind each reset token.
	resetTokenBytes = 32

	// defaultTokenTTL is the fixed expiry offset from issuance.
	defaultTokenTTL = time.Hour
)

// Service drives the token-based out-of-band credential recovery flow.
type Service struct {
	users               iam.Repository
	tokens              Repository
	notificationManager *notification.NotificationManager
	auditRecorder       *audit.Recorder
	tokenTTL            time.Duration
	now                 func() time.Time
}

// NewService creates a new password reset service.
func NewService(users iam.Repository, tokens Repository, notificationManager *notification.NotificationManager, auditRecorder *audit.Recorder) *Service {
	return &Service{
		users:               users,
		tokens:              tokens,
		notificationManager: notificationManager,
		auditRecorder:       auditRecorder,
		tokenTTL:            defaultTokenTTL,
		now:                 time.Now,
	}
}

// HashToken returns the persisted form of a reset token. Only this hash is
// ever stored; the plaintext travels to the user and nowhere else.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// InitReset looks up the user by email and, if found, issues a reset token
// and mails the recovery link. Returns an error when the email is unknown —
// this mirrors the panel's existing behavior and does reveal account
// existence to the caller.
func (s *Service) InitReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.auditRecorder.Activity(
			fmt.Sprintf("Password reset request for non-existent email: %s", email),
			audit.UnknownActor)
		return iam.ErrUserNotFound
	}

	token := utils.GenerateRandomString(resetTokenBytes)
	err = s.tokens.Create(ctx, CreateTokenParams{
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: s.now().Add(s.tokenTTL),
	})
	if err != nil {
		s.auditRecorder.Activity(
			fmt.Sprintf("Failed to store password reset token for: %s", email),
			audit.UnknownActor)
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	s.sendResetNotice(user.Email, token)
	s.auditRecorder.Activity(
		fmt.Sprintf("Password reset token generated and email sent for: %s", email),
		user.Username)
	return nil
}

// sendResetNotice mails the plaintext token embedded in a recovery URL.
// Delivery failure is non-fatal to the flow.
func (s *Service) sendResetNotice(email, token string) {
	if s.notificationManager == nil {
		return
	}
	resetLink := fmt.Sprintf("%s/password-reset/%s", s.notificationManager.BaseUrl, token)
	err := s.notificationManager.Send(notification.PasswordResetNotice, notification.NotificationData{
		To: email,
		Data: map[string]string{
			"Link": resetLink,
		},
	})
	if err != nil {
		slog.Error("Failed to send password reset email", "email", email, "err", err)
	}
}

// VerifyToken checks a presented token and returns the owning user id when
// it is redeemable, without consuming it. A token found but expired is
// marked consumed as a side effect of the failed lookup.
func (s *Service) VerifyToken(ctx context.Context, token string) (int64, error) {
	tokenHash := HashToken(token)

	row, err := s.tokens.FindActiveByHash(ctx, tokenHash)
	if err != nil {
		if !errors.Is(err, ErrTokenInvalid) {
			return 0, err
		}
		s.auditRecorder.Activity(
			fmt.Sprintf("Password reset token verification failed for token hash: %s", tokenHash),
			audit.UnknownActor)
		return 0, ErrTokenInvalid
	}

	if !s.now().Before(row.ExpiresAt) {
		// Found but expired: retire it on the way out
		if err := s.tokens.MarkUsed(ctx, tokenHash); err != nil {
			slog.Error("Failed to mark expired token used", "err", err)
		}
		s.auditRecorder.Activity(
			fmt.Sprintf("Password reset token expired for token hash: %s", tokenHash),
			audit.UnknownActor)
		return 0, ErrTokenInvalid
	}

	return row.UserID, nil
}

// CompleteReset consumes the token and commits the new password. Consumption
// is atomic with the validity check, so concurrent redemptions of the same
// token cannot both succeed.
func (s *Service) CompleteReset(ctx context.Context, token, newPassword string) error {
	tokenHash := HashToken(token)

	userID, err := s.tokens.Consume(ctx, tokenHash, s.now())
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			// A found-but-expired row is retired on the way out, same as
			// the verification path
			if row, findErr := s.tokens.FindActiveByHash(ctx, tokenHash); findErr == nil && !s.now().Before(row.ExpiresAt) {
				if markErr := s.tokens.MarkUsed(ctx, tokenHash); markErr != nil {
					slog.Error("Failed to mark expired token used", "err", markErr)
				}
			}
			s.auditRecorder.Activity(
				fmt.Sprintf("Password reset completion refused for token hash: %s", tokenHash),
				audit.UnknownActor)
		}
		return err
	}

	if err := s.SetPassword(ctx, userID, newPassword); err != nil {
		return err
	}

	// Retire any other outstanding grants for this user
	if err := s.tokens.InvalidateAllForUser(ctx, userID); err != nil {
		slog.Error("Failed to invalidate remaining reset tokens", "userId", userID, "err", err)
	}
	return nil
}

// Invalidate idempotently marks a token row as used.
func (s *Service) Invalidate(ctx context.Context, tokenHash string) error {
	return s.tokens.MarkUsed(ctx, tokenHash)
}

// SetPassword hashes and persists the new credential and stamps update time.
func (s *Service) SetPassword(ctx context.Context, userID int64, newPassword string) error {
	passwordHash, err := iam.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return err
	}
	s.auditRecorder.Activity(fmt.Sprintf("Password updated for user ID: %d", userID), fmt.Sprintf("%d", userID))
	return nil
}
