package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-at-least-16-chars!!"

// newTestTokenService uses a fixed secret and a controllable clock.
func newTestTokenService(t *testing.T) (*TokenService, *time.Time) {
	t.Helper()
	ts, err := NewTokenService(testSecret, 0, 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	now := time.Now()
	ts.now = func() time.Time { return now }
	return ts, &now
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService(t *testing.T) {
	if _, err := NewTokenService("short", 0, 0); err == nil {
		t.Error("NewTokenService() should reject secrets shorter than 16 chars")
	}

	ts, err := NewTokenService("this-is-16-chars", 0, 0)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.accessTTL != DefaultAccessTTL || ts.refreshTTL != DefaultRefreshTTL {
		t.Errorf("TTLs = %v/%v, want defaults", ts.accessTTL, ts.refreshTTL)
	}
}

// =========================================================================
// ROUND TRIPS
// =========================================================================

func TestAccessToken_RoundTrip(t *testing.T) {
	ts, _ := newTestTokenService(t)

	token, err := ts.GenerateAccess(42, true)
	if err != nil {
		t.Fatalf("GenerateAccess() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token does not look like a JWT: %q", token)
	}

	claims, err := ts.Validate(token, TypeAccess)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Errorf("UserID() = %d, %v, want 42", id, err)
	}
	if !claims.Fresh {
		t.Error("login token should be fresh")
	}
	if claims.ID == "" {
		t.Error("token has no jti")
	}
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	ts, _ := newTestTokenService(t)

	token, _ := ts.GenerateRefresh(7)
	claims, err := ts.Validate(token, TypeRefresh)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Fresh {
		t.Error("refresh token should not be fresh")
	}
}

func TestActivationToken_CarriesEmail(t *testing.T) {
	ts, _ := newTestTokenService(t)

	token, _ := ts.GenerateActivation("jack@example.com")
	claims, err := ts.Validate(token, TypeActivate)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "jack@example.com" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if _, err := claims.UserID(); err == nil {
		t.Error("an email subject must not parse as a user id")
	}
}

func TestTokens_HaveUniqueIDs(t *testing.T) {
	ts, _ := newTestTokenService(t)

	a, _ := ts.GenerateAccess(1, false)
	b, _ := ts.GenerateAccess(1, false)
	ca, _ := ts.Validate(a, TypeAccess)
	cb, _ := ts.Validate(b, TypeAccess)

	if ca.ID == cb.ID {
		t.Error("two tokens share a jti")
	}
}

// =========================================================================
// REJECTIONS
// =========================================================================

func TestValidate_WrongType(t *testing.T) {
	ts, _ := newTestTokenService(t)

	refresh, _ := ts.GenerateRefresh(1)
	if _, err := ts.Validate(refresh, TypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token accepted as access: %v", err)
	}

	access, _ := ts.GenerateAccess(1, true)
	if _, err := ts.Validate(access, TypeRefresh); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token accepted as refresh: %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	ts, now := newTestTokenService(t)

	token, _ := ts.GenerateActivation("a@b.c")
	*now = now.Add(ActivationTTL + time.Minute)

	if _, err := ts.Validate(token, TypeActivate); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Validate() error = %v, want ErrTokenExpired", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts, _ := newTestTokenService(t)
	other, _ := NewTokenService("a-completely-different-secret", 0, 0)

	token, _ := other.GenerateAccess(1, true)
	if _, err := ts.Validate(token, TypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_RejectsNoneAlgorithm(t *testing.T) {
	ts, _ := newTestTokenService(t)

	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Type: TypeAccess,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ts.Validate(token, TypeAccess); err == nil {
		t.Error("Validate() accepted an unsigned token")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts, _ := newTestTokenService(t)

	for _, s := range []string{"", "abc", "a.b.c"} {
		if _, err := ts.Validate(s, TypeAccess); err == nil {
			t.Errorf("Validate(%q) should fail", s)
		}
	}
}

func TestClaimsRemaining(t *testing.T) {
	now := time.Now()
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))}}

	if got := c.Remaining(now); got <= 0 || got > time.Minute {
		t.Errorf("Remaining() = %v", got)
	}
	if got := c.Remaining(now.Add(time.Hour)); got != 0 {
		t.Errorf("Remaining() after expiry = %v, want 0", got)
	}
}
