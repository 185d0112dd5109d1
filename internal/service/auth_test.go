package service

import (
	"context"
	"testing"

	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/auth"
	"github.com/sakif/smilecook/internal/cache"
	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/repository/memory"
)

type authFixture struct {
	svc       *AuthService
	users     *memory.UserStore
	tokens    *auth.TokenService
	blocklist *auth.Blocklist
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		users:     memory.NewUserStore(),
		tokens:    testTokens(t),
		blocklist: auth.NewBlocklist(cache.NewMemory()),
	}
	f.svc = NewAuthService(f.users, testPasswords(), f.tokens, f.blocklist, testLogger())
	return f
}

func (f *authFixture) addUser(t *testing.T, email, password string, active bool) *model.User {
	t.Helper()
	hash, err := testPasswords().Hash(password)
	if err != nil {
		t.Fatal(err)
	}
	u := &model.User{Username: email[:4], Email: email, PasswordHash: hash, IsActive: active}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	user := f.addUser(t, "jack@example.com", "WkQad19", true)

	pair, err := f.svc.Login(context.Background(), " JACK@example.com ", "WkQad19")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	access, err := f.tokens.Validate(pair.AccessToken, auth.TypeAccess)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	if !access.Fresh {
		t.Error("login must issue a fresh access token")
	}
	if id, _ := access.UserID(); id != user.ID {
		t.Errorf("access token subject = %d, want %d", id, user.ID)
	}

	if _, err := f.tokens.Validate(pair.RefreshToken, auth.TypeRefresh); err != nil {
		t.Errorf("refresh token invalid: %v", err)
	}
}

func TestLogin_Failures(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "jack@example.com", "WkQad19", true)
	f.addUser(t, "jill@example.com", "WkQad19", false)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
		wantMsg  string
	}{
		{"wrong password", "jack@example.com", "nope", apperror.ErrUnauthorized, MsgBadCredentials},
		{"unknown email", "ghost@example.com", "WkQad19", apperror.ErrUnauthorized, MsgBadCredentials},
		{"empty", "", "", apperror.ErrUnauthorized, MsgBadCredentials},
		{"inactive account", "jill@example.com", "WkQad19", apperror.ErrForbidden, MsgNotActivated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := f.svc.Login(context.Background(), tt.email, tt.password)
			assertErrIs(t, err, tt.wantErr)
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
			if pair != nil {
				t.Error("tokens issued on failure")
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	f := newAuthFixture(t)
	user := f.addUser(t, "jack@example.com", "WkQad19", true)

	refresh, _ := f.tokens.GenerateRefresh(user.ID)
	claims, err := f.tokens.Validate(refresh, auth.TypeRefresh)
	if err != nil {
		t.Fatal(err)
	}

	token, err := f.svc.Refresh(context.Background(), claims)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	access, err := f.tokens.Validate(token, auth.TypeAccess)
	if err != nil {
		t.Fatal(err)
	}
	if access.Fresh {
		t.Error("refreshed access token must not be fresh")
	}
}

func TestRefresh_DeletedUser(t *testing.T) {
	f := newAuthFixture(t)

	refresh, _ := f.tokens.GenerateRefresh(99)
	claims, _ := f.tokens.Validate(refresh, auth.TypeRefresh)

	_, err := f.svc.Refresh(context.Background(), claims)
	assertErrIs(t, err, apperror.ErrUnauthorized)
}

func TestRevoke(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	token, _ := f.tokens.GenerateAccess(1, true)
	claims, _ := f.tokens.Validate(token, auth.TypeAccess)

	if err := f.svc.Revoke(ctx, claims); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	revoked, err := f.blocklist.IsRevoked(ctx, claims.ID)
	if err != nil || !revoked {
		t.Errorf("IsRevoked() = %v, %v; want true", revoked, err)
	}
}
