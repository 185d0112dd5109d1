package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/auth"
	"github.com/sakif/smilecook/internal/service"
)

// AuthService is what TokenHandler needs from the service layer.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*service.TokenPair, error)
	Refresh(ctx context.Context, claims *auth.Claims) (string, error)
	Revoke(ctx context.Context, claims *auth.Claims) error
}

// TokenHandler issues, refreshes and revokes JWTs.
//
//   - HandleLogin   → POST /token    (email + password)
//   - HandleRefresh → POST /refresh  (refresh token; RequireRefresh)
//   - HandleRevoke  → POST /revoke   (access token; RequireAuth)
type TokenHandler struct {
	auth   AuthService
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler around authService.
func NewTokenHandler(authService AuthService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{auth: authService, logger: logger}
}

// loginRequest is decoded without validation tags: missing fields simply
// fail the credential check with the same 401 as a wrong password.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// HandleLogin exchanges credentials for an access/refresh token pair.
//
// HTTP: POST /token
func (h *TokenHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleRefresh issues a non-fresh access token.
//
// HTTP: POST /refresh
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthorized("valid authentication required"))
		return
	}

	token, err := h.auth.Refresh(r.Context(), claims)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: token})
}

// HandleRevoke blocklists the presented access token.
//
// HTTP: POST /revoke
func (h *TokenHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthorized("valid authentication required"))
		return
	}

	if err := h.auth.Revoke(r.Context(), claims); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: service.MsgLoggedOut})
}
