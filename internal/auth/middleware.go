package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/smilecook/internal/access"
)

// contextKey is unexported so no other package can read or overwrite the
// values stored here.
type contextKey string

const claimsKey contextKey = "claims"

var errNoToken = errors.New("auth: no token")

// Authenticator turns request credentials into verified claims.
//
// HOW A REQUEST IS AUTHENTICATED:
//  1. Read the token from "Authorization: Bearer <token>". Nothing else is
//     consulted: no cookies, no query string.
//  2. Verify signature, expiry and the "typ" claim against the route.
//  3. Reject the token if its jti is on the blocklist.
//  4. Store the claims in the request context for ClaimsFromContext.
//
// RequireAuth and RequireRefresh fail closed with 401. OptionalAuth never
// rejects: a missing or bad token just means the request is anonymous.
type Authenticator struct {
	tokens    *TokenService
	blocklist *Blocklist
	logger    *slog.Logger
}

// NewAuthenticator builds the middleware factory. blocklist may be nil, in
// which case revocation is not checked.
func NewAuthenticator(tokens *TokenService, blocklist *Blocklist, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, blocklist: blocklist, logger: logger}
}

// RequireAuth rejects the request with 401 unless it carries a valid,
// unrevoked access token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return a.require(TypeAccess, next)
}

// RequireRefresh is RequireAuth for the refresh endpoint.
func (a *Authenticator) RequireRefresh(next http.Handler) http.Handler {
	return a.require(TypeRefresh, next)
}

func (a *Authenticator) require(typ TokenType, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.authenticate(r, typ)
		if err != nil {
			message := "valid authentication required"
			if errors.Is(err, ErrTokenExpired) {
				message = "token has expired"
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// OptionalAuth attaches the caller's identity when a valid access token is
// present and otherwise lets the request through as anonymous.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := a.authenticate(r, TypeAccess); err == nil {
			r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(r *http.Request, typ TokenType) (*Claims, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return nil, errNoToken
	}

	claims, err := a.tokens.Validate(raw, typ)
	if err != nil {
		return nil, err
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}

	if a.blocklist != nil {
		revoked, err := a.blocklist.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			// Fail open when the cache is unreachable.
			a.logger.Error("blocklist lookup failed", "error", err, "jti", claims.ID)
		}
		if revoked {
			return nil, ErrInvalidToken
		}
	}

	return claims, nil
}

// tokenFromRequest reads "Authorization: Bearer <jwt>". It is the only
// place a token is accepted from; the API never sets cookies.
func tokenFromRequest(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ClaimsFromContext returns the verified claims stored by the middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// UserIDFromContext returns (0, false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return 0, false
	}
	id, err := c.UserID()
	return id, err == nil
}

// ActorFromContext is the identity handlers pass to the service layer.
func ActorFromContext(ctx context.Context) access.Actor {
	if id, ok := UserIDFromContext(ctx); ok {
		return access.User(id)
	}
	return access.Anonymous()
}

// WithClaims returns a copy of ctx carrying claims. Tests use it to call
// handlers without going through the middleware.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}
