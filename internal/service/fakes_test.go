package service

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/auth"
	"github.com/sakif/smilecook/internal/cache"
	"github.com/sakif/smilecook/internal/mailer"
	"github.com/sakif/smilecook/internal/metrics"
	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/repository"
	"github.com/sakif/smilecook/internal/repository/memory"
	"github.com/sakif/smilecook/internal/storage"
)

// =========================================================================
// FAKES
// =========================================================================
//
// The fakes wrap the in-memory store and add what the tests need to
// observe: call counters and injectable failures.

type fakeRecipeRepo struct {
	*memory.RecipeStore
	listPublishedCalls int
	updateErr          error
	// afterListPublished runs once the page has been read, before the
	// service sees it.
	afterListPublished func()
}

func newFakeRecipeRepo() *fakeRecipeRepo {
	return &fakeRecipeRepo{RecipeStore: memory.NewRecipeStore()}
}

func (f *fakeRecipeRepo) ListPublished(ctx context.Context, q repository.RecipeQuery) (repository.RecipePage, error) {
	f.listPublishedCalls++
	page, err := f.RecipeStore.ListPublished(ctx, q)
	if hook := f.afterListPublished; hook != nil {
		f.afterListPublished = nil
		hook()
	}
	return page, err
}

func (f *fakeRecipeRepo) Update(ctx context.Context, r *model.Recipe) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.RecipeStore.Update(ctx, r)
}

// spyCache counts prefix invalidations.
type spyCache struct {
	*cache.Memory
	deletePrefixCalls int
}

func (s *spyCache) DeletePrefix(ctx context.Context, prefix string) error {
	s.deletePrefixCalls++
	return s.Memory.DeletePrefix(ctx, prefix)
}

// fakeStorage keeps saved files in a map.
type fakeStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	removed []string
	saveErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte)}
}

func (f *fakeStorage) Save(_ context.Context, folder, name string, r io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := folder + "/" + name
	f.files[ref] = b
	return ref, nil
}

func (f *fakeStorage) Remove(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, ref)
	f.removed = append(f.removed, ref)
	return nil
}

func (f *fakeStorage) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return "https://cdn.test/" + ref
}

// fakeMailer records every message.
type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("service-test-secret-0123456789", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func testPasswords() *auth.PasswordService {
	return auth.NewPasswordServiceWithCost(4)
}

// recipeFixture bundles a RecipeService with its collaborators.
type recipeFixture struct {
	svc     *RecipeService
	recipes *fakeRecipeRepo
	users   *memory.UserStore
	cache   *spyCache
	files   *fakeStorage
}

func newRecipeFixture(t *testing.T) *recipeFixture {
	t.Helper()
	f := &recipeFixture{
		recipes: newFakeRecipeRepo(),
		users:   memory.NewUserStore(),
		cache:   &spyCache{Memory: cache.NewMemory()},
		files:   newFakeStorage(),
	}
	f.svc = NewRecipeService(f.recipes, f.users, f.cache, f.files, storage.NewProcessor(2), metrics.New(), testLogger())
	return f
}

// addUser stores an active user directly in the store.
func (f *recipeFixture) addUser(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@example.com", IsActive: true}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return u
}

// addRecipe stores a recipe directly, bypassing the service.
func (f *recipeFixture) addRecipe(t *testing.T, ownerID int64, name string, published bool) *model.Recipe {
	t.Helper()
	r := &model.Recipe{
		Name:          name,
		Description:   name + " description",
		NumOfServings: 2,
		CookTime:      20,
		Directions:    "mix",
		UserID:        ownerID,
		IsPublish:     published,
	}
	if err := f.recipes.RecipeStore.Create(context.Background(), r); err != nil {
		t.Fatalf("creating recipe: %v", err)
	}
	return r
}

func pngUpload(t *testing.T, w, h int) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{G: 255, A: 255})
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func assertErrIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

func ptr[T any](v T) *T { return &v }

// fieldErrors returns the per-field messages of a validation error.
func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v is not an *apperror.AppError", err)
	}
	return appErr.Fields
}
