// Package auth issues and verifies the API's JSON Web Tokens, hashes
// passwords and provides the HTTP middleware that turns a token into an
// access.Actor.
//
// TOKEN KINDS:
//
//	access   short-lived, sent on every authenticated request
//	refresh  long-lived, only accepted by POST /refresh
//	activate emailed to new users, only accepted by GET /users/activate/{token}
//
// The kind travels in the "typ" claim, so a refresh token can never be used
// as an access token and vice versa. Every token carries a unique "jti"
// which the blocklist uses to revoke it before it expires.
//
// An access token is "fresh" when it came straight from a password login and
// not from /refresh.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	issuer = "smilecook"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	ActivationTTL     = 30 * time.Minute
)

// TokenType is the value of the "typ" claim.
type TokenType string

const (
	TypeAccess   TokenType = "access"
	TypeRefresh  TokenType = "refresh"
	TypeActivate TokenType = "activate"
)

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenService signs and verifies HS256 tokens with one shared secret.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService. Zero TTLs fall back to the
// defaults. The secret must be at least 16 characters.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Claims is the JWT payload.
//
// Subject is the decimal user id for access and refresh tokens, and the
// email address for activation tokens.
type Claims struct {
	jwt.RegisteredClaims
	Type  TokenType `json:"typ"`
	Fresh bool      `json:"fresh,omitempty"`
}

// UserID parses the subject of an access or refresh token.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	return id, nil
}

// Remaining is how long until the token expires, never negative.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(c.ExpiresAt.Sub(now), 0)
}

// GenerateAccess issues an access token for userID.
func (s *TokenService) GenerateAccess(userID int64, fresh bool) (string, error) {
	return s.sign(strconv.FormatInt(userID, 10), TypeAccess, fresh, s.accessTTL)
}

// GenerateRefresh issues a refresh token for userID.
func (s *TokenService) GenerateRefresh(userID int64) (string, error) {
	return s.sign(strconv.FormatInt(userID, 10), TypeRefresh, false, s.refreshTTL)
}

// GenerateActivation issues the token mailed to a new account.
func (s *TokenService) GenerateActivation(email string) (string, error) {
	return s.sign(email, TypeActivate, false, ActivationTTL)
}

func (s *TokenService) sign(subject string, typ TokenType, fresh bool, ttl time.Duration) (string, error) {
	now := s.now()

	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		Type:  typ,
		Fresh: fresh,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses tokenStr and checks the signature, expiry, issuer and that
// the "typ" claim equals want.
//
// Only HS256 is accepted. Passing jwt.WithValidMethods stops a token that
// claims "alg":"none" from being trusted.
func (s *TokenService) Validate(tokenStr string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}
	if c.Type != want {
		return nil, fmt.Errorf("%w: got %s token, want %s", ErrInvalidToken, c.Type, want)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	return c, nil
}
