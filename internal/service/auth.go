package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/auth"
	"github.com/sakif/smilecook/internal/repository"
)

// Messages returned to clients by the token endpoints.
const (
	MsgBadCredentials = "email or password is incorrect"
	MsgNotActivated   = "The user account is not activated yet"
	MsgLoggedOut      = "Successfully logged out"
)

// TokenPair is the body returned by POST /token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthService issues and revokes tokens.
//
//	POST /token   email + password → fresh access token + refresh token
//	POST /refresh refresh token    → non-fresh access token
//	POST /revoke  access token     → token id blocklisted until it expires
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	blocklist *auth.Blocklist
	logger    *slog.Logger
}

// NewAuthService wires an AuthService.
//
// The blocklist is shared with the HTTP middleware: Revoke writes a token id
// into it and auth.Authenticator reads it on every request, which is how a
// logged-out token stops working before it expires.
func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	blocklist *auth.Blocklist,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		blocklist: blocklist,
		logger:    logger,
	}
}

// Login checks credentials and issues a token pair. An unknown email and a
// wrong password produce the same error so accounts cannot be enumerated.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.Unauthorized(MsgBadCredentials)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(MsgBadCredentials)
		}
		return nil, fmt.Errorf("looking up %s: %w", email, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login failed", slog.Int64("user_id", user.ID))
			return nil, apperror.Unauthorized(MsgBadCredentials)
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, apperror.Forbidden(MsgNotActivated)
	}

	access, err := s.tokens.GenerateAccess(user.ID, true)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateRefresh(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.Int64("user_id", user.ID))
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh issues a new, non-fresh access token for the holder of a valid
// refresh token. The account must still exist.
func (s *AuthService) Refresh(ctx context.Context, claims *auth.Claims) (string, error) {
	id, err := claims.UserID()
	if err != nil {
		return "", apperror.Unauthorized("valid authentication required")
	}
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized("valid authentication required")
		}
		return "", err
	}
	return s.tokens.GenerateAccess(id, false)
}

// Revoke blocklists the token described by claims.
func (s *AuthService) Revoke(ctx context.Context, claims *auth.Claims) error {
	if err := s.blocklist.Revoke(ctx, claims); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	s.logger.Info("token revoked", slog.String("jti", claims.ID), slog.String("sub", claims.Subject))
	return nil
}
