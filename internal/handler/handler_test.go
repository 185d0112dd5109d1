package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/smilecook/internal/auth"
	"github.com/sakif/smilecook/internal/cache"
	"github.com/sakif/smilecook/internal/handler"
	"github.com/sakif/smilecook/internal/mailer"
	"github.com/sakif/smilecook/internal/metrics"
	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/repository/memory"
	"github.com/sakif/smilecook/internal/service"
	"github.com/sakif/smilecook/internal/storage"
)

// captureMailer keeps the last message so tests can follow the activation link.
type captureMailer struct {
	last mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.last = msg
	return nil
}

// testAPI is the full handler stack over in-memory collaborators.
type testAPI struct {
	router *chi.Mux
	users  *memory.UserStore
	tokens *auth.TokenService
	mail   *captureMailer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Minute, time.Hour)
	require.NoError(t, err)
	files, err := storage.NewLocal(t.TempDir(), "http://api.test")
	require.NoError(t, err)

	users := memory.NewUserStore()
	recipes := memory.NewRecipeStore()
	c := cache.NewMemory()
	blocklist := auth.NewBlocklist(c)
	passwords := auth.NewPasswordServiceWithCost(4)
	m := metrics.New()
	mail := &captureMailer{}
	activation := func(token string) string { return "http://api.test/users/activate/" + token }

	images := storage.NewProcessor(2)

	recipeSvc := service.NewRecipeService(recipes, users, c, files, images, m, logger)
	userSvc := service.NewUserService(users, passwords, tokens, mail, files, images, activation, m, logger)
	authSvc := service.NewAuthService(users, passwords, tokens, blocklist, logger)

	rh := handler.NewRecipeHandler(recipeSvc, "http://api.test", logger)
	uh := handler.NewUserHandler(userSvc, recipeSvc, "http://api.test", logger)
	th := handler.NewTokenHandler(authSvc, logger)
	authn := auth.NewAuthenticator(tokens, blocklist, logger)

	r := chi.NewRouter()
	r.Post("/token", th.HandleLogin)
	r.With(authn.RequireRefresh).Post("/refresh", th.HandleRefresh)
	r.With(authn.RequireAuth).Post("/revoke", th.HandleRevoke)

	r.With(authn.OptionalAuth).Get("/recipes", rh.HandleList)
	r.With(authn.RequireAuth).Post("/recipes", rh.HandleCreate)
	r.With(authn.OptionalAuth).Get("/recipes/{id}", rh.HandleGet)
	r.With(authn.RequireAuth).Put("/recipes/{id}", rh.HandleReplace)
	r.With(authn.RequireAuth).Patch("/recipes/{id}", rh.HandlePatch)
	r.With(authn.RequireAuth).Delete("/recipes/{id}", rh.HandleDelete)
	r.With(authn.RequireAuth).Put("/recipes/{id}/publish", rh.HandlePublish)
	r.With(authn.RequireAuth).Delete("/recipes/{id}/publish", rh.HandleUnpublish)
	r.With(authn.RequireAuth).Put("/recipes/{id}/cover", rh.HandleCover)

	r.Post("/users", uh.HandleRegister)
	r.Get("/users/activate/{token}", uh.HandleActivate)
	r.With(authn.RequireAuth).Put("/users/avatar", uh.HandleAvatar)
	r.With(authn.OptionalAuth).Get("/users/{username}", uh.HandleGet)
	r.With(authn.OptionalAuth).Get("/users/{username}/recipes", uh.HandleRecipes)
	r.With(authn.RequireAuth).Get("/me", uh.HandleMe)

	return &testAPI{router: r, users: users, tokens: tokens, mail: mail}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

// signup registers, activates and logs in a user, returning its id and
// access token.
func (a *testAPI) signup(t *testing.T, username string) (int64, string) {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/users", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "WkQad19",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var user model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))

	link := a.mail.last.Text
	token := strings.TrimSpace(link[strings.Index(link, "/users/activate/"):])
	rr = a.do(t, http.MethodGet, token, "", nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodPost, "/token", "", map[string]string{
		"email":    username + "@example.com",
		"password": "WkQad19",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var pair service.TokenPair
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&pair))
	return user.ID, pair.AccessToken
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func recipeBody() map[string]any {
	return map[string]any{
		"name":            "Cheese Pizza",
		"description":     "This is a lovely cheese pizza",
		"num_of_servings": 2,
		"cook_time":       30,
		"directions":      "This is how you make it",
	}
}

// =========================================================================
// RECIPES
// =========================================================================

func TestRecipeLifecycle(t *testing.T) {
	api := newTestAPI(t)
	_, jack := api.signup(t, "jack")
	_, jill := api.signup(t, "jill")

	// Create requires a token.
	rr := api.do(t, http.MethodPost, "/recipes", "", recipeBody())
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, http.MethodPost, "/recipes", jack, recipeBody())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[model.Recipe](t, rr)
	assert.False(t, created.IsPublish)
	assert.Equal(t, []string{}, created.Ingredients)
	path := "/recipes/" + itoa(created.ID)

	// Drafts are private.
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, path, jack, nil).Code)
	rr = api.do(t, http.MethodGet, path, jill, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Access not allowed", decode[handler.ErrorResponse](t, rr).Message)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, path, "", nil).Code)

	// Only the owner may edit; 404 wins over 403.
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodPatch, path, jill, map[string]any{"cook_time": 5}).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPatch, "/recipes/999", jill, map[string]any{"cook_time": 5}).Code)

	rr = api.do(t, http.MethodPatch, path, jack, map[string]any{"cook_time": 45})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	patched := decode[model.Recipe](t, rr)
	assert.Equal(t, 45, patched.CookTime)
	assert.Equal(t, "Cheese Pizza", patched.Name)

	// Publish, then everyone can read it and it is listed.
	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodPut, path+"/publish", jack, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, path, "", nil).Code)

	rr = api.do(t, http.MethodGet, "/recipes", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[handler.PageResponse](t, rr)
	assert.Equal(t, 1, list.Total)

	// Unpublish sticks.
	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, path+"/publish", jack, nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, path, jill, nil).Code)
	list = decode[handler.PageResponse](t, api.do(t, http.MethodGet, "/recipes", "", nil))
	assert.Equal(t, 0, list.Total)

	// Delete.
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodDelete, path, jill, nil).Code)
	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, path, jack, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, path, jack, nil).Code)
}

func TestRecipeCreate_ValidationEnvelope(t *testing.T) {
	api := newTestAPI(t)
	_, jack := api.signup(t, "jack")

	rr := api.do(t, http.MethodPost, "/recipes", jack, map[string]any{"cook_time": 999})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode[handler.ErrorResponse](t, rr)
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, []string{"Missing data for required field."}, body.Errors["name"])
	assert.Equal(t, []string{"Missing data for required field."}, body.Errors["description"])
	assert.Equal(t, []string{"Must be less than or equal to 300."}, body.Errors["cook_time"])
}

func TestRecipeGet_NonNumericID(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/recipes/pizza", "", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "recipe not found", decode[handler.ErrorResponse](t, rr).Message)
}

func TestRecipeList_PaginationEnvelope(t *testing.T) {
	api := newTestAPI(t)
	_, jack := api.signup(t, "jack")

	for i := 0; i < 3; i++ {
		created := decode[model.Recipe](t, api.do(t, http.MethodPost, "/recipes", jack, recipeBody()))
		require.Equal(t, http.StatusNoContent, api.do(t, http.MethodPut, "/recipes/"+itoa(created.ID)+"/publish", jack, nil).Code)
	}

	rr := api.do(t, http.MethodGet, "/recipes?per_page=2&page=1&sort=cook_time&order=asc", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	page := decode[handler.PageResponse](t, rr)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Len(t, page.Data, 2)
	assert.Empty(t, page.Links.Prev)
	assert.Contains(t, page.Links.Next, "page=2")
	assert.Contains(t, page.Links.Next, "sort=cook_time")
}

func TestRecipeCover(t *testing.T) {
	api := newTestAPI(t)
	_, jack := api.signup(t, "jack")
	created := decode[model.Recipe](t, api.do(t, http.MethodPost, "/recipes", jack, recipeBody()))

	body, contentType := multipartImage(t, "cover", "pizza.png")
	req := httptest.NewRequest(http.MethodPut, "/recipes/"+itoa(created.ID)+"/cover", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+jack)
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	recipe := decode[model.Recipe](t, rr)
	assert.True(t, strings.HasPrefix(recipe.CoverURL, "http://api.test/uploads/recipes/"), recipe.CoverURL)
	assert.True(t, strings.HasSuffix(recipe.CoverURL, "-pizza.jpg"), recipe.CoverURL)
}

func TestRecipeCover_MissingFile(t *testing.T) {
	api := newTestAPI(t)
	_, jack := api.signup(t, "jack")
	created := decode[model.Recipe](t, api.do(t, http.MethodPost, "/recipes", jack, recipeBody()))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("note", "no file here"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPut, "/recipes/"+itoa(created.ID)+"/cover", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+jack)
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, []string{"Please upload file"}, decode[handler.ErrorResponse](t, rr).Errors["cover"])
}

// =========================================================================
// USERS
// =========================================================================

func TestRegister_Conflict(t *testing.T) {
	api := newTestAPI(t)
	api.signup(t, "jack")

	rr := api.do(t, http.MethodPost, "/users", "", map[string]string{
		"username": "jack", "email": "new@example.com", "password": "WkQad19",
	})

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "username already used", decode[handler.ErrorResponse](t, rr).Message)
}

func TestUserProfile_EmailOnlyForOwner(t *testing.T) {
	api := newTestAPI(t)
	_, jack := api.signup(t, "jack")
	_, jill := api.signup(t, "jill")

	own := api.do(t, http.MethodGet, "/users/jack", jack, nil)
	require.Equal(t, http.StatusOK, own.Code)
	assert.Contains(t, own.Body.String(), `"email":"jack@example.com"`)

	other := api.do(t, http.MethodGet, "/users/jack", jill, nil)
	require.Equal(t, http.StatusOK, other.Code)
	assert.NotContains(t, other.Body.String(), "email")

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/users/nobody", "", nil).Code)
}

func TestUserRecipes_Visibility(t *testing.T) {
	api := newTestAPI(t)
	_, jack := api.signup(t, "jack")
	_, jill := api.signup(t, "jill")

	api.do(t, http.MethodPost, "/recipes", jack, recipeBody())
	public := decode[model.Recipe](t, api.do(t, http.MethodPost, "/recipes", jack, recipeBody()))
	require.Equal(t, http.StatusNoContent, api.do(t, http.MethodPut, "/recipes/"+itoa(public.ID)+"/publish", jack, nil).Code)

	tests := []struct {
		name  string
		token string
		query string
		want  int
	}{
		{"owner all", jack, "?visibility=all", 2},
		{"owner private", jack, "?visibility=private", 1},
		{"owner default", jack, "", 1},
		{"stranger all", jill, "?visibility=all", 1},
		{"anonymous private", "", "?visibility=private", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, http.MethodGet, "/users/jack/recipes"+tt.query, tt.token, nil)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, decode[handler.PageResponse](t, rr).Total)
		})
	}
}

func TestActivate_BadToken(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/users/activate/not-a-token", "", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid token or token expired", decode[handler.ErrorResponse](t, rr).Message)
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	id, jack := api.signup(t, "jack")

	rr := api.do(t, http.MethodGet, "/me", jack, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode[model.User](t, rr)
	assert.Equal(t, id, me.ID)
	assert.Equal(t, "jack@example.com", me.Email)
	assert.True(t, me.IsActive)

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/me", "", nil).Code)
}

func TestAvatarUpload(t *testing.T) {
	api := newTestAPI(t)
	_, jack := api.signup(t, "jack")

	body, contentType := multipartImage(t, "avatar", "me.jpg")
	req := httptest.NewRequest(http.MethodPut, "/users/avatar", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+jack)
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, decode[model.User](t, rr).AvatarURL, "/uploads/avatars/")
}

// =========================================================================
// TOKENS
// =========================================================================

func TestLogin_Errors(t *testing.T) {
	api := newTestAPI(t)
	api.signup(t, "jack")

	rr := api.do(t, http.MethodPost, "/users", "", map[string]string{
		"username": "idle", "email": "idle@example.com", "password": "WkQad19",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	tests := []struct {
		name       string
		email      string
		password   string
		wantStatus int
		wantMsg    string
	}{
		{"wrong password", "jack@example.com", "nope-nope", http.StatusUnauthorized, service.MsgBadCredentials},
		{"unknown email", "ghost@example.com", "WkQad19", http.StatusUnauthorized, service.MsgBadCredentials},
		{"not activated", "idle@example.com", "WkQad19", http.StatusForbidden, service.MsgNotActivated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, http.MethodPost, "/token", "", map[string]string{"email": tt.email, "password": tt.password})
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantMsg, decode[handler.ErrorResponse](t, rr).Message)
		})
	}
}

func TestRefreshAndRevoke(t *testing.T) {
	api := newTestAPI(t)
	id, access := api.signup(t, "jack")

	refresh, err := api.tokens.GenerateRefresh(id)
	require.NoError(t, err)

	// An access token cannot refresh.
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodPost, "/refresh", access, nil).Code)

	rr := api.do(t, http.MethodPost, "/refresh", refresh, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	fresh := decode[map[string]string](t, rr)["access_token"]
	claims, err := api.tokens.Validate(fresh, auth.TypeAccess)
	require.NoError(t, err)
	assert.False(t, claims.Fresh)

	rr = api.do(t, http.MethodPost, "/revoke", access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, service.MsgLoggedOut, decode[handler.MessageResponse](t, rr).Message)

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/me", access, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/me", fresh, nil).Code)
}

// =========================================================================
// HELPERS
// =========================================================================

func multipartImage(t *testing.T, field, filename string) (io.Reader, string) {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, imaging.Encode(&img, imaging.New(40, 30, color.NRGBA{R: 200, A: 255}), imaging.PNG))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
