package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jvillanueva/hilot/internal/auth"
	"github.com/jvillanueva/hilot/internal/middleware"
	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const (
	sessionTTL      = 14 * 24 * time.Hour
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

type AuthHandler struct {
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	limiter      *middleware.RateLimiter
	logger       *slog.Logger
}

func NewAuthHandler(us *store.UserStore, ss *store.SessionStore, limiter *middleware.RateLimiter, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:    us,
		sessionStore: ss,
		limiter:      limiter,
		logger:       logger.With("component", "auth"),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(middleware.RealIP(r), loginRateLimit, loginRateWindow) {
		errorJSON(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		errorJSON(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.userStore.GetByUsername(req.Username)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Run the comparison even when the user is missing so response timing
	// does not leak which usernames exist.
	hash := "$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva"
	if user != nil {
		hash = user.PasswordHash
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil || user == nil {
		errorJSON(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if !user.Active {
		errorJSON(w, http.StatusUnauthorized, "account is disabled")
		return
	}

	sess, err := h.sessionStore.Create(user.ID, sessionTTL)
	if err != nil {
		h.logger.Error("create session", "error", err)
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}

	cookie := middleware.SessionCookie(sess.Token, int(sessionTTL.Seconds()))
	cookie.Secure = r.TLS != nil
	http.SetCookie(w, cookie)

	h.logger.Info("user logged in", "username", user.Username, "role", user.Role)
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	expired := middleware.SessionCookie("", -1)
	if cookie, err := r.Cookie(expired.Name); err == nil && cookie.Value != "" {
		if err := h.sessionStore.Delete(cookie.Value); err != nil {
			h.logger.Warn("delete session", "error", err)
		}
	}

	http.SetCookie(w, expired)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil || user == nil {
		errorJSON(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type createUserRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

var validRoles = map[string]bool{
	model.RoleAdmin:   true,
	model.RoleMidwife: true,
	model.RoleBHW:     true,
}

func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		errorJSON(w, http.StatusBadRequest, "username is required")
		return
	}
	if len(req.Password) < 8 {
		errorJSON(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if !validRoles[req.Role] {
		errorJSON(w, http.StatusBadRequest, "role must be admin, midwife, or bhw")
		return
	}

	existing, err := h.userStore.GetByUsername(req.Username)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		errorJSON(w, http.StatusConflict, "username already taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := h.userStore.Create(req.Username, req.FullName, req.Role, string(hash))
	if err != nil {
		h.logger.Error("create user", "error", err)
		errorJSON(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userStore.List()
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *AuthHandler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := h.userStore.GetByID(id)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		errorJSON(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.userStore.SetActive(id, req.Active); err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
