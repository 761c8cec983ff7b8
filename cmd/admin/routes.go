package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	"github.com/panelkit/simple-admin/pkg/iam"
	"github.com/panelkit/simple-admin/pkg/login"
	"github.com/panelkit/simple-admin/pkg/ratelimit"
	"github.com/panelkit/simple-admin/pkg/reset"
	"github.com/panelkit/simple-admin/pkg/session"
)

// Handle carries the wired services for the HTTP surface.
type Handle struct {
	loginService   *login.Service
	iamService     *iam.Service
	resetService   *reset.Service
	csrfManager    *login.CsrfManager
	sessionManager *session.Manager
	gate           *login.Gate
	loginLimiter   *ratelimit.RateLimiter
}

func NewHandle(loginService *login.Service, iamService *iam.Service, resetService *reset.Service, csrfManager *login.CsrfManager, sessionManager *session.Manager, gate *login.Gate) *Handle {
	return &Handle{
		loginService:   loginService,
		iamService:     iamService,
		resetService:   resetService,
		csrfManager:    csrfManager,
		sessionManager: sessionManager,
		gate:           gate,
		// 30 credential requests per minute per client IP
		loginLimiter: ratelimit.NewRateLimiter(30, 30.0/60.0, time.Hour),
	}
}

func (h *Handle) Routes(r *chi.Mux) {
	// Credential endpoints are throttled per client IP
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.PerIP(h.loginLimiter))
		r.Get("/login", h.LoginForm)
		r.Post("/login", h.Login)
		r.Post("/password-reset", h.InitPasswordReset)
		r.Get("/password-reset/{token}", h.VerifyPasswordReset)
		r.Post("/password-reset/{token}", h.CompletePasswordReset)
	})

	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireLogin("", ""))
		r.Get("/me", h.Me)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Use(h.gate.RequireLogin(string(login.RoleAdministrator), ""))
		r.Use(h.requireCsrf)
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Get("/{id}", h.GetUser)
		r.Put("/{id}", h.UpdateUser)
		r.Delete("/{id}", h.DeleteUser)
	})
}

// requireCsrf rejects state-changing requests whose X-Csrf-Token header does
// not match the session token. Runs after the gate, so the session is always
// in context here.
func (h *Handle) requireCsrf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		sess, ok := login.SessionFromContext(r.Context())
		if !ok {
			http.Error(w, "Access Denied", http.StatusForbidden)
			return
		}
		if !h.csrfManager.Verify(r.Context(), sess, r.Header.Get("X-Csrf-Token")) {
			http.Error(w, "Invalid CSRF token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	CsrfToken  string `json:"csrf_token"`
}

// LoginForm hands out the CSRF token the login submission must echo back,
// establishing an anonymous session if the caller has none.
func (h *Handle) LoginForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := h.sessionManager.GetOrCreate(ctx, w, r)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	token, err := h.csrfManager.Issue(ctx, sess)
	if err != nil {
		http.Error(w, "Failed to issue CSRF token", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, map[string]string{"csrf_token": token})
}

// Login authenticates the identifier/password pair. The failure response is
// identical for unknown users, wrong passwords and inactive accounts.
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := h.sessionManager.GetOrCreate(ctx, w, r)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	req := loginRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "Unable to parse request", http.StatusBadRequest)
		return
	}

	if !h.csrfManager.Verify(ctx, sess, req.CsrfToken) {
		h.csrfManager.Regenerate(ctx, sess)
		http.Error(w, "Invalid CSRF token", http.StatusForbidden)
		return
	}

	ok, err := h.loginService.Login(ctx, sess, req.Identifier, req.Password)
	if err != nil {
		// Session store failure, not a credential rejection
		http.Error(w, "Login temporarily unavailable", http.StatusInternalServerError)
		return
	}
	// Fresh token for the next submission, pass or fail
	h.csrfManager.Regenerate(ctx, sess)

	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Invalid credentials or inactive account."})
		return
	}

	// Login rotated the session id; the cookie must follow
	h.sessionManager.WriteCookie(w, sess)

	redirect := h.gate.ConsumeRedirect(ctx, sess, "/")
	render.JSON(w, r, map[string]string{"redirect": redirect})
}

// Logout tears down the session. Safe to call without one.
func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := h.sessionManager.Current(ctx, r)
	if err == nil {
		if err := h.loginService.Logout(ctx, sess); err != nil {
			http.Error(w, "Failed to log out", http.StatusInternalServerError)
			return
		}
	}
	h.sessionManager.Destroy(ctx, w, nil)
	render.JSON(w, r, map[string]string{"redirect": "/login"})
}

// Me describes the authenticated caller.
func (h *Handle) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := login.SessionFromContext(ctx)

	token, err := h.csrfManager.Issue(ctx, sess)
	if err != nil {
		http.Error(w, "Failed to issue CSRF token", http.StatusInternalServerError)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"user_id":       sess.UserID,
		"username":      sess.Username,
		"email":         sess.Email,
		"role":          sess.Role,
		"logged_in_at":  sess.LoggedInAt,
		"csrf_token":    token,
		"can_edit_post": h.loginService.HasPermission(sess, login.PermissionEditPosts),
	})
}

type initResetRequest struct {
	Email     string `json:"email"`
	CsrfToken string `json:"csrf_token"`
}

func (h *Handle) InitPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := h.sessionManager.GetOrCreate(ctx, w, r)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	req := initResetRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "Unable to parse request", http.StatusBadRequest)
		return
	}

	if !h.csrfManager.Verify(ctx, sess, req.CsrfToken) {
		h.csrfManager.Regenerate(ctx, sess)
		http.Error(w, "Invalid CSRF token", http.StatusForbidden)
		return
	}
	h.csrfManager.Regenerate(ctx, sess)

	if err := h.resetService.InitReset(ctx, req.Email); err != nil {
		if errors.Is(err, iam.ErrUserNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "No account found with that email address."})
			return
		}
		http.Error(w, "Failed to initiate password reset", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, map[string]string{"message": "Password reset email sent."})
}

func (h *Handle) VerifyPasswordReset(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if _, err := h.resetService.VerifyToken(r.Context(), token); err != nil {
		if errors.Is(err, reset.ErrTokenInvalid) {
			render.Status(r, http.StatusGone)
			render.JSON(w, r, map[string]string{"error": "This reset link is invalid or has expired."})
			return
		}
		http.Error(w, "Failed to verify reset token", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, map[string]bool{"valid": true})
}

type completeResetRequest struct {
	Password  string `json:"password"`
	CsrfToken string `json:"csrf_token"`
}

func (h *Handle) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	sess, err := h.sessionManager.GetOrCreate(ctx, w, r)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	req := completeResetRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "Unable to parse request", http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		http.Error(w, "Password is required", http.StatusBadRequest)
		return
	}

	if !h.csrfManager.Verify(ctx, sess, req.CsrfToken) {
		h.csrfManager.Regenerate(ctx, sess)
		http.Error(w, "Invalid CSRF token", http.StatusForbidden)
		return
	}
	h.csrfManager.Regenerate(ctx, sess)

	if err := h.resetService.CompleteReset(ctx, token, req.Password); err != nil {
		if errors.Is(err, reset.ErrTokenInvalid) {
			render.Status(r, http.StatusGone)
			render.JSON(w, r, map[string]string{"error": "This reset link is invalid or has expired."})
			return
		}
		http.Error(w, "Failed to reset password", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, map[string]string{"message": "Password updated. You can now log in."})
}

type userResponse struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	Role                string     `json:"role"`
	Status              string     `json:"status"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func (h *Handle) toUserResponse(r *http.Request, u iam.User) userResponse {
	resp := userResponse{}
	copier.Copy(&resp, &u)
	resp.Status = string(u.Status)
	resp.Role = h.iamService.ResolveRoleName(r.Context(), u)
	return resp
}

func (h *Handle) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.iamService.FindUsers(r.Context())
	if err != nil {
		http.Error(w, "Failed to list users", http.StatusInternalServerError)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, h.toUserResponse(r, u))
	}
	render.JSON(w, r, resp)
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   *int64 `json:"role_id"`
	Status   string `json:"status"`
}

func (h *Handle) CreateUser(w http.ResponseWriter, r *http.Request) {
	req := createUserRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "Unable to parse request", http.StatusBadRequest)
		return
	}

	userID, err := h.iamService.CreateUser(r.Context(), req.Username, req.Email, req.Password, req.RoleID, iam.Status(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, iam.ErrMissingFields):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, iam.ErrDuplicateEmail), errors.Is(err, iam.ErrDuplicateUsername):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Failed to create user", http.StatusInternalServerError)
		}
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]int64{"id": userID})
}

func (h *Handle) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	user, err := h.iamService.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, iam.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch user", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, h.toUserResponse(r, user))
}

type updateUserRequest struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	Password  string  `json:"password"`
	RoleID    *int64  `json:"role_id"`
	ClearRole bool    `json:"clear_role"`
	Status    *string `json:"status"`
}

func (h *Handle) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	req := updateUserRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "Unable to parse request", http.StatusBadRequest)
		return
	}

	update := iam.UpdateUserRequest{}
	copier.Copy(&update, &req)
	if req.Status != nil {
		status := iam.Status(*req.Status)
		update.Status = &status
	}

	if err := h.iamService.UpdateUser(r.Context(), userID, update); err != nil {
		switch {
		case errors.Is(err, iam.ErrDuplicateEmail), errors.Is(err, iam.ErrDuplicateUsername):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, iam.ErrUserNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
		default:
			http.Error(w, "Failed to update user", http.StatusInternalServerError)
		}
		return
	}
	render.JSON(w, r, map[string]string{"message": "User updated."})
}

func (h *Handle) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	sess, _ := login.SessionFromContext(r.Context())
	if err := h.iamService.DeleteUser(r.Context(), userID, sess.UserID); err != nil {
		switch {
		case errors.Is(err, iam.ErrSelfDelete):
			http.Error(w, "You cannot delete your own account.", http.StatusBadRequest)
		case errors.Is(err, iam.ErrUserNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
		default:
			http.Error(w, "Failed to delete user", http.StatusInternalServerError)
		}
		return
	}
	render.JSON(w, r, map[string]string{"message": "User deleted."})
}
