package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelkit/simple-admin/pkg/audit"
	"github.com/panelkit/simple-admin/pkg/iam"
	"github.com/panelkit/simple-admin/pkg/login"
	"github.com/panelkit/simple-admin/pkg/notification"
	"github.com/panelkit/simple-admin/pkg/reset"
	"github.com/panelkit/simple-admin/pkg/session"
)

type testEnv struct {
	router *chi.Mux
	users  *iam.InMemoryRepository
	mock   *notification.MockNotifier
}

func setupEnv(t *testing.T) *testEnv {
	users := iam.NewInMemoryRepository()
	sessions := session.NewInMemoryRepository()
	tokens := reset.NewInMemoryRepository()
	recorder := audit.NewRecorder(nil)

	mock := &notification.MockNotifier{}
	nm := notification.NewNotificationManager("http://localhost:8080")
	nm.RegisterNotifier(notification.EmailSystem, mock)
	require.NoError(t, nm.RegisterNotification(notification.PasswordResetNotice, notification.EmailSystem, notification.NoticeTemplate{Subject: "Password Reset Request"}))
	require.NoError(t, nm.RegisterNotification(notification.WelcomeNotice, notification.EmailSystem, notification.NoticeTemplate{Subject: "Welcome"}))

	sessionManager := session.NewManager(sessions, session.Config{CookieName: "admin_session", TTL: time.Hour, HttpOnly: true})
	iamService := iam.NewService(users, recorder, nm)
	loginService := login.NewService(users, sessions, login.NewPolicy(), recorder)
	csrfManager := login.NewCsrfManager(sessions, recorder)
	gate := login.NewGate(loginService, sessionManager, "/login")
	resetService := reset.NewService(users, tokens, nm, recorder)

	handle := NewHandle(loginService, iamService, resetService, csrfManager, sessionManager, gate)
	router := chi.NewRouter()
	handle.Routes(router)

	return &testEnv{router: router, users: users, mock: mock}
}

func (e *testEnv) seedAdmin(t *testing.T) iam.User {
	t.Helper()
	ctx := context.Background()
	role, err := e.users.CreateRole(ctx, "administrator")
	require.NoError(t, err)
	hash, err := iam.HashPassword("admin-secret")
	require.NoError(t, err)
	admin, err := e.users.CreateUser(ctx, iam.CreateUserParams{
		Username:     "admin",
		Email:        "admin@example.com",
		PasswordHash: hash,
		RoleID:       &role.ID,
		Status:       iam.StatusActive,
	})
	require.NoError(t, err)
	return admin
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie, csrfHeader string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		r.AddCookie(cookie)
	}
	if csrfHeader != "" {
		r.Header.Set("X-Csrf-Token", csrfHeader)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func findCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "admin_session" && c.Value != "" {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

// login performs the form fetch plus submission and returns the rotated cookie.
func (e *testEnv) login(t *testing.T, identifier, password string) (*http.Cookie, *httptest.ResponseRecorder) {
	t.Helper()
	form := e.do(t, http.MethodGet, "/login", nil, nil, "")
	require.Equal(t, http.StatusOK, form.Code)
	cookie := findCookie(form)
	require.NotNil(t, cookie)
	csrf := decodeBody(t, form)["csrf_token"].(string)

	resp := e.do(t, http.MethodPost, "/login", map[string]string{
		"identifier": identifier,
		"password":   password,
		"csrf_token": csrf,
	}, cookie, "")
	if rotated := findCookie(resp); rotated != nil {
		cookie = rotated
	}
	return cookie, resp
}

func TestLoginFlow(t *testing.T) {
	env := setupEnv(t)
	env.seedAdmin(t)

	form := env.do(t, http.MethodGet, "/login", nil, nil, "")
	require.Equal(t, http.StatusOK, form.Code)
	anonCookie := findCookie(form)
	require.NotNil(t, anonCookie)

	cookie, resp := env.login(t, "admin", "admin-secret")
	require.Equal(t, http.StatusOK, resp.Code)
	// Session id rotated at login
	assert.NotEqual(t, anonCookie.Value, cookie.Value)

	me := env.do(t, http.MethodGet, "/me", nil, cookie, "")
	require.Equal(t, http.StatusOK, me.Code)
	body := decodeBody(t, me)
	assert.Equal(t, "admin", body["username"])
	assert.Equal(t, "administrator", body["role"])
}

func TestLoginFailureIsUniform(t *testing.T) {
	env := setupEnv(t)
	env.seedAdmin(t)

	_, wrongPass := env.login(t, "admin", "bad-password")
	_, unknown := env.login(t, "ghost", "bad-password")

	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	// Same body for both failure modes
	assert.Equal(t, wrongPass.Body.String(), unknown.Body.String())
}

func TestLoginRejectsBadCsrf(t *testing.T) {
	env := setupEnv(t)
	env.seedAdmin(t)

	form := env.do(t, http.MethodGet, "/login", nil, nil, "")
	cookie := findCookie(form)
	require.NotNil(t, cookie)

	resp := env.do(t, http.MethodPost, "/login", map[string]string{
		"identifier": "admin",
		"password":   "admin-secret",
		"csrf_token": "forged",
	}, cookie, "")
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestProtectedRoutesRedirectAnonymous(t *testing.T) {
	env := setupEnv(t)

	resp := env.do(t, http.MethodGet, "/me", nil, nil, "")
	assert.Equal(t, http.StatusFound, resp.Code)
	assert.Equal(t, "/login", resp.Header().Get("Location"))
}

func TestUserCrud(t *testing.T) {
	env := setupEnv(t)
	admin := env.seedAdmin(t)

	cookie, resp := env.login(t, "admin", "admin-secret")
	require.Equal(t, http.StatusOK, resp.Code)

	me := env.do(t, http.MethodGet, "/me", nil, cookie, "")
	require.Equal(t, http.StatusOK, me.Code)
	csrf := decodeBody(t, me)["csrf_token"].(string)

	// Create
	created := env.do(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "bob-secret",
	}, cookie, csrf)
	require.Equal(t, http.StatusCreated, created.Code)
	bobID := int64(decodeBody(t, created)["id"].(float64))

	// List includes both
	list := env.do(t, http.MethodGet, "/api/users", nil, cookie, "")
	require.Equal(t, http.StatusOK, list.Code)
	var users []map[string]interface{}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&users))
	assert.Len(t, users, 2)

	// Mutations without the CSRF header are refused
	noCsrf := env.do(t, http.MethodDelete, "/api/users/2", nil, cookie, "")
	assert.Equal(t, http.StatusForbidden, noCsrf.Code)

	// Self-delete is refused
	self := env.do(t, http.MethodDelete, "/api/users/1", nil, cookie, csrf)
	assert.Equal(t, http.StatusBadRequest, self.Code)
	_ = admin

	// Deleting the other user works
	del := env.do(t, http.MethodDelete, "/api/users/2", nil, cookie, csrf)
	require.Equal(t, http.StatusOK, del.Code)
	_ = bobID
}

func TestUserCrudRequiresAdministrator(t *testing.T) {
	env := setupEnv(t)
	env.seedAdmin(t)

	ctx := context.Background()
	role, err := env.users.CreateRole(ctx, "editor")
	require.NoError(t, err)
	hash, err := iam.HashPassword("editor-secret")
	require.NoError(t, err)
	_, err = env.users.CreateUser(ctx, iam.CreateUserParams{
		Username:     "eddy",
		Email:        "eddy@example.com",
		PasswordHash: hash,
		RoleID:       &role.ID,
		Status:       iam.StatusActive,
	})
	require.NoError(t, err)

	cookie, resp := env.login(t, "eddy", "editor-secret")
	require.Equal(t, http.StatusOK, resp.Code)

	list := env.do(t, http.MethodGet, "/api/users", nil, cookie, "")
	assert.Equal(t, http.StatusForbidden, list.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	env := setupEnv(t)
	env.seedAdmin(t)

	form := env.do(t, http.MethodGet, "/login", nil, nil, "")
	cookie := findCookie(form)
	require.NotNil(t, cookie)
	csrf := decodeBody(t, form)["csrf_token"].(string)

	initResp := env.do(t, http.MethodPost, "/password-reset", map[string]string{
		"email":      "admin@example.com",
		"csrf_token": csrf,
	}, cookie, "")
	require.Equal(t, http.StatusOK, initResp.Code)

	require.Len(t, env.mock.SentNotifications, 1)
	link := env.mock.SentNotifications[0].Data["Link"]
	prefix := "http://localhost:8080/password-reset/"
	require.Greater(t, len(link), len(prefix))
	token := link[len(prefix):]

	// Link checks out
	verify := env.do(t, http.MethodGet, "/password-reset/"+token, nil, nil, "")
	assert.Equal(t, http.StatusOK, verify.Code)

	// Complete with a fresh session and its token
	form2 := env.do(t, http.MethodGet, "/login", nil, nil, "")
	cookie2 := findCookie(form2)
	csrf2 := decodeBody(t, form2)["csrf_token"].(string)

	complete := env.do(t, http.MethodPost, "/password-reset/"+token, map[string]string{
		"password":   "reset-secret",
		"csrf_token": csrf2,
	}, cookie2, "")
	require.Equal(t, http.StatusOK, complete.Code)

	// The link is spent
	gone := env.do(t, http.MethodGet, "/password-reset/"+token, nil, nil, "")
	assert.Equal(t, http.StatusGone, gone.Code)

	// Old password out, new password in
	_, oldLogin := env.login(t, "admin", "admin-secret")
	assert.Equal(t, http.StatusUnauthorized, oldLogin.Code)
	_, newLogin := env.login(t, "admin", "reset-secret")
	assert.Equal(t, http.StatusOK, newLogin.Code)
}

func TestResetUnknownEmailIsReported(t *testing.T) {
	env := setupEnv(t)

	form := env.do(t, http.MethodGet, "/login", nil, nil, "")
	cookie := findCookie(form)
	csrf := decodeBody(t, form)["csrf_token"].(string)

	resp := env.do(t, http.MethodPost, "/password-reset", map[string]string{
		"email":      "nobody@example.com",
		"csrf_token": csrf,
	}, cookie, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestLogout(t *testing.T) {
	env := setupEnv(t)
	env.seedAdmin(t)

	cookie, resp := env.login(t, "admin", "admin-secret")
	require.Equal(t, http.StatusOK, resp.Code)

	out := env.do(t, http.MethodPost, "/logout", nil, cookie, "")
	require.Equal(t, http.StatusOK, out.Code)

	// The session no longer authenticates
	me := env.do(t, http.MethodGet, "/me", nil, cookie, "")
	assert.Equal(t, http.StatusFound, me.Code)

	// Logging out again is harmless
	again := env.do(t, http.MethodPost, "/logout", nil, cookie, "")
	assert.Equal(t, http.StatusOK, again.Code)
}
