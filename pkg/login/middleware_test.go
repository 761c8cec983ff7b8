package login

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelkit/simple-admin/pkg/audit"
	"github.com/panelkit/simple-admin/pkg/iam"
	"github.com/panelkit/simple-admin/pkg/session"
)

func setupGate(t *testing.T) (*Gate, *session.Manager) {
	users := iam.NewInMemoryRepository()
	repo := session.NewInMemoryRepository()
	manager := session.NewManager(repo, session.Config{CookieName: "admin_session", TTL: time.Hour})
	service := NewService(users, repo, NewPolicy(), audit.NewRecorder(nil))
	return NewGate(service, manager, "/login"), manager
}

func authedSession(t *testing.T, manager *session.Manager, role string) *session.Session {
	t.Helper()
	sess := session.New(time.Hour)
	sess.UserID = 42
	sess.Username = "alice"
	sess.Role = role
	require.NoError(t, manager.Save(context.Background(), sess))
	return sess
}

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestRequireLogin_RedirectsAnonymous(t *testing.T) {
	gate, manager := setupGate(t)
	next, called := okHandler()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/users?page=2", nil)
	gate.RequireLogin("", "")(next).ServeHTTP(w, r)

	assert.False(t, *called)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	// The original target was parked on a fresh session for the bounce-back
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "admin_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	sess, err := manager.Repository().Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "/api/users?page=2", sess.RedirectURL)
}

func TestRequireLogin_PassesAuthenticated(t *testing.T) {
	gate, manager := setupGate(t)
	sess := authedSession(t, manager, "editor")

	var fromCtx *session.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		fromCtx = got
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	r.AddCookie(&http.Cookie{Name: "admin_session", Value: sess.ID})
	gate.RequireLogin("", "")(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, fromCtx)
	assert.Equal(t, sess.UserID, fromCtx.UserID)
}

func TestRequireLogin_RoleCheck(t *testing.T) {
	gate, manager := setupGate(t)
	sess := authedSession(t, manager, "editor")
	next, called := okHandler()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	r.AddCookie(&http.Cookie{Name: "admin_session", Value: sess.ID})
	gate.RequireLogin("administrator", "")(next).ServeHTTP(w, r)

	assert.False(t, *called)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := authedSession(t, manager, "administrator")
	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	r2.AddCookie(&http.Cookie{Name: "admin_session", Value: admin.ID})
	gate.RequireLogin("administrator", "")(next).ServeHTTP(w2, r2)

	assert.Equal(t, http.StatusOK, w2.Code)
	assert.True(t, *called)
}

func TestRequireLogin_PermissionCheck(t *testing.T) {
	gate, manager := setupGate(t)
	next, called := okHandler()

	editor := authedSession(t, manager, "editor")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/posts/1", nil)
	r.AddCookie(&http.Cookie{Name: "admin_session", Value: editor.ID})
	gate.RequireLogin("", PermissionEditPosts)(next).ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, *called)

	plain := authedSession(t, manager, "default")
	w2 := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodPost, "/posts/1", nil)
	r2.AddCookie(&http.Cookie{Name: "admin_session", Value: plain.ID})
	gate.RequireLogin("", PermissionEditPosts)(next).ServeHTTP(w2, r2)
	assert.Equal(t, http.StatusForbidden, w2.Code)
}

func TestConsumeRedirect(t *testing.T) {
	gate, manager := setupGate(t)
	ctx := context.Background()

	sess := authedSession(t, manager, "editor")
	sess.RedirectURL = "/reports"
	require.NoError(t, manager.Save(ctx, sess))

	// First consumption returns the parked target and clears it
	assert.Equal(t, "/reports", gate.ConsumeRedirect(ctx, sess, "/"))
	assert.Equal(t, "/", gate.ConsumeRedirect(ctx, sess, "/"))

	stored, err := manager.Repository().Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RedirectURL)
}
