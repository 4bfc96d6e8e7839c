package handler

import (
	"net/http"
	"time"

	"aiaxstock/internal/middleware"
	"aiaxstock/internal/model"
	"aiaxstock/internal/service"
	"aiaxstock/pkg/apierror"
	"aiaxstock/pkg/response"
)

// AuthHandler handles login and session HTTP requests.
type AuthHandler struct {
	auth     *service.Authenticator
	sessions *service.SessionService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(auth *service.Authenticator, sessions *service.SessionService) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
	}
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Role       model.Role `json:"role"`
	Identifier string     `json:"identifier"`
}

// LoginResponse represents the response for login.
type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Session   *model.Session `json:"session"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s, err := h.auth.Login(req.Role, req.Identifier)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.sessions.Create(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, LoginResponse{
		Token:     token,
		ExpiresAt: s.ExpiresAt,
		Session:   s,
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		response.Error(w, apierror.InternalError("failed to revoke token"))
		return
	}

	response.OK(w, map[string]string{"status": "logged_out"})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r)
	if !ok {
		return
	}
	response.OK(w, s)
}
