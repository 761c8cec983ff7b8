package reset

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelkit/simple-admin/pkg/audit"
	"github.com/panelkit/simple-admin/pkg/iam"
	"github.com/panelkit/simple-admin/pkg/notification"
	"github.com/panelkit/simple-admin/pkg/utils"
)

func setupReset(t *testing.T) (*Service, *iam.InMemoryRepository, *InMemoryRepository, *notification.MockNotifier) {
	users := iam.NewInMemoryRepository()
	tokens := NewInMemoryRepository()

	mock := &notification.MockNotifier{}
	nm := notification.NewNotificationManager("http://localhost:8080")
	nm.RegisterNotifier(notification.EmailSystem, mock)
	err := nm.RegisterNotification(notification.PasswordResetNotice, notification.EmailSystem, notification.NoticeTemplate{
		Subject: "Password Reset Request",
		Text:    "Reset link: {{.Link}}",
	})
	require.NoError(t, err)

	return NewService(users, tokens, nm, audit.NewRecorder(nil)), users, tokens, mock
}

func seedUser(t *testing.T, users *iam.InMemoryRepository, username, email, password string) iam.User {
	t.Helper()
	hash, err := iam.HashPassword(password)
	require.NoError(t, err)
	user, err := users.CreateUser(context.Background(), iam.CreateUserParams{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Status:       iam.StatusActive,
	})
	require.NoError(t, err)
	return user
}

func TestInitReset(t *testing.T) {
	service, users, _, mock := setupReset(t)
	ctx := context.Background()

	seedUser(t, users, "alice", "alice@example.com", "secret123")

	err := service.InitReset(ctx, "alice@example.com")
	require.NoError(t, err)

	require.Len(t, mock.SentNotifications, 1)
	sent := mock.SentNotifications[0]
	assert.Equal(t, "alice@example.com", sent.To)
	assert.Contains(t, sent.Data["Link"], "http://localhost:8080/password-reset/")
}

func TestInitReset_UnknownEmail(t *testing.T) {
	service, _, _, mock := setupReset(t)

	err := service.InitReset(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, iam.ErrUserNotFound)
	assert.Empty(t, mock.SentNotifications)
}

func TestVerifyToken(t *testing.T) {
	service, users, tokens, _ := setupReset(t)
	ctx := context.Background()

	user := seedUser(t, users, "alice", "alice@example.com", "secret123")

	token := utils.GenerateRandomString(32)
	err := tokens.Create(ctx, CreateTokenParams{
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	// Verification does not consume
	userID, err := service.VerifyToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	userID, err = service.VerifyToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	_, err = service.VerifyToken(ctx, "not-a-real-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyToken_ExpiredIsRetired(t *testing.T) {
	service, users, tokens, _ := setupReset(t)
	ctx := context.Background()

	user := seedUser(t, users, "alice", "alice@example.com", "secret123")

	token := utils.GenerateRandomString(32)
	err := tokens.Create(ctx, CreateTokenParams{
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = service.VerifyToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// The failed lookup marked the row used
	_, err = tokens.FindActiveByHash(ctx, HashToken(token))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestCompleteReset(t *testing.T) {
	service, users, _, mock := setupReset(t)
	ctx := context.Background()

	user := seedUser(t, users, "alice", "alice@example.com", "old-secret")

	require.NoError(t, service.InitReset(ctx, "alice@example.com"))
	token := lastSentToken(t, mock)

	err := service.CompleteReset(ctx, token, "new-secret-456")
	require.NoError(t, err)

	stored, err := users.GetUser(ctx, user.ID)
	require.NoError(t, err)
	ok, err := iam.CheckPasswordHash("new-secret-456", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	// Single use: the same token cannot be redeemed twice
	err = service.CompleteReset(ctx, token, "another-password")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

// lastSentToken extracts the plaintext token from the most recent reset link.
func lastSentToken(t *testing.T, mock *notification.MockNotifier) string {
	t.Helper()
	require.NotEmpty(t, mock.SentNotifications)
	link := mock.SentNotifications[len(mock.SentNotifications)-1].Data["Link"]
	prefix := "http://localhost:8080/password-reset/"
	require.Greater(t, len(link), len(prefix))
	return link[len(prefix):]
}

func TestCompleteReset_ExpiredIsRetired(t *testing.T) {
	service, users, tokens, _ := setupReset(t)
	ctx := context.Background()

	user := seedUser(t, users, "alice", "alice@example.com", "old-secret")

	token := utils.GenerateRandomString(32)
	err := tokens.Create(ctx, CreateTokenParams{
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	err = service.CompleteReset(ctx, token, "new-secret-456")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// The password did not change
	stored, err := users.GetUser(ctx, user.ID)
	require.NoError(t, err)
	ok, err := iam.CheckPasswordHash("old-secret", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	// The refused lookup marked the row used
	_, err = tokens.FindActiveByHash(ctx, HashToken(token))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestCompleteReset_InvalidatesSiblingTokens(t *testing.T) {
	service, users, tokens, _ := setupReset(t)
	ctx := context.Background()

	user := seedUser(t, users, "alice", "alice@example.com", "old-secret")

	// Two outstanding grants for the same user
	first := utils.GenerateRandomString(32)
	second := utils.GenerateRandomString(32)
	for _, tok := range []string{first, second} {
		err := tokens.Create(ctx, CreateTokenParams{
			UserID:    user.ID,
			TokenHash: HashToken(tok),
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
	}

	require.NoError(t, service.CompleteReset(ctx, first, "new-secret-456"))

	// Redeeming one retires the other
	err := service.CompleteReset(ctx, second, "sneaky-password")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestCompleteReset_ConcurrentRedemption(t *testing.T) {
	service, users, tokens, _ := setupReset(t)
	ctx := context.Background()

	user := seedUser(t, users, "alice", "alice@example.com", "old-secret")

	token := utils.GenerateRandomString(32)
	err := tokens.Create(ctx, CreateTokenParams{
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := service.CompleteReset(ctx, token, "new-secret-456"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	// Exactly one racer redeems the token
	assert.Equal(t, int32(1), wins)
}

func TestSetPassword(t *testing.T) {
	service, users, _, _ := setupReset(t)
	ctx := context.Background()

	user := seedUser(t, users, "alice", "alice@example.com", "old-secret")

	require.NoError(t, service.SetPassword(ctx, user.ID, "brand-new-secret"))

	stored, err := users.GetUser(ctx, user.ID)
	require.NoError(t, err)
	ok, err := iam.CheckPasswordHash("brand-new-secret", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	// Unknown user id surfaces the repository error
	err = service.SetPassword(ctx, user.ID+100, "whatever")
	assert.ErrorIs(t, err, iam.ErrUserNotFound)
}
