// Package memory keeps recipes and users in process memory. It backs the
// STORE=memory mode and is handy in tests that do not want SQLite.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/repository"
)

var (
	_ repository.RecipeRepository = (*RecipeStore)(nil)
	_ repository.UserRepository   = (*UserStore)(nil)
)

// RecipeStore holds recipes keyed by id. IDs are handed out from a counter
// that never goes backwards, so a deleted id is never reused.
type RecipeStore struct {
	mu      sync.RWMutex
	recipes map[int64]model.Recipe
	nextID  int64
}

// NewRecipeStore returns an empty store whose first id is 1.
func NewRecipeStore() *RecipeStore {
	return &RecipeStore{recipes: make(map[int64]model.Recipe), nextID: 1}
}

// Create assigns the next id and timestamps and stores a copy of recipe.
func (s *RecipeStore) Create(_ context.Context, recipe *model.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	recipe.ID = s.nextID
	recipe.CreatedAt = now
	recipe.UpdatedAt = now
	s.nextID++

	s.recipes[recipe.ID] = cloneRecipe(*recipe)
	return nil
}

// GetByID returns a copy, so callers can mutate it freely until they call
// Update.
func (s *RecipeStore) GetByID(_ context.Context, id int64) (*model.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[id]
	if !ok {
		return nil, apperror.NotFound("recipe")
	}
	out := cloneRecipe(r)
	return &out, nil
}

// ListPublished filters, sorts and pages in Go. The rules match the SQL in
// the sqlite package: literal case-insensitive substring search, allow-listed
// sort key with id as tie-breaker.
func (s *RecipeStore) ListPublished(_ context.Context, q repository.RecipeQuery) (repository.RecipePage, error) {
	q = q.Normalize()
	needle := strings.ToLower(q.Q)

	s.mu.RLock()
	matched := make([]model.Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		if !r.IsPublish {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.Name), needle) &&
			!strings.Contains(strings.ToLower(r.Description), needle) {
			continue
		}
		matched = append(matched, cloneRecipe(r))
	}
	s.mu.RUnlock()

	sortRecipes(matched, q.Sort, q.Order == repository.OrderDesc)
	return paginate(matched, q.Page, q.PerPage), nil
}

// ListByUser returns one page of userID's recipes, newest first.
func (s *RecipeStore) ListByUser(_ context.Context, userID int64, visibility model.Visibility, page, perPage int) (repository.RecipePage, error) {
	page, perPage = repository.NormalizePage(page, perPage)

	s.mu.RLock()
	matched := make([]model.Recipe, 0)
	for _, r := range s.recipes {
		if r.UserID != userID {
			continue
		}
		switch visibility {
		case model.VisibilityAll:
		case model.VisibilityPrivate:
			if r.IsPublish {
				continue
			}
		default:
			if !r.IsPublish {
				continue
			}
		}
		matched = append(matched, cloneRecipe(r))
	}
	s.mu.RUnlock()

	sortRecipes(matched, repository.SortCreatedAt, true)
	return paginate(matched, page, perPage), nil
}

// Update replaces a stored recipe. Owner and creation time are kept from
// the stored copy.
func (s *RecipeStore) Update(_ context.Context, recipe *model.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.recipes[recipe.ID]
	if !ok {
		return apperror.NotFound("recipe")
	}
	recipe.UserID = stored.UserID
	recipe.CreatedAt = stored.CreatedAt
	recipe.UpdatedAt = time.Now().UTC()

	s.recipes[recipe.ID] = cloneRecipe(*recipe)
	return nil
}

// Delete removes a recipe; the id is never handed out again.
func (s *RecipeStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recipes[id]; !ok {
		return apperror.NotFound("recipe")
	}
	delete(s.recipes, id)
	return nil
}

// sortRecipes orders by the given key with id as the tie-breaker, both in
// the same direction.
func sortRecipes(recipes []model.Recipe, key string, desc bool) {
	less := func(a, b model.Recipe) bool {
		switch key {
		case repository.SortCookTime:
			if a.CookTime != b.CookTime {
				return a.CookTime < b.CookTime
			}
		case repository.SortNumOfServings:
			if a.NumOfServings != b.NumOfServings {
				return a.NumOfServings < b.NumOfServings
			}
		case repository.SortCreatedAt:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	}
	sort.Slice(recipes, func(i, j int) bool {
		if desc {
			return less(recipes[j], recipes[i])
		}
		return less(recipes[i], recipes[j])
	})
}

func paginate(all []model.Recipe, page, perPage int) repository.RecipePage {
	result := repository.RecipePage{Page: page, PerPage: perPage, Total: len(all)}

	start := repository.Offset(page, perPage)
	if start >= len(all) {
		result.Recipes = []model.Recipe{}
		return result
	}
	end := min(start+perPage, len(all))
	result.Recipes = all[start:end]
	return result
}

func cloneRecipe(r model.Recipe) model.Recipe {
	if r.Ingredients == nil {
		r.Ingredients = []string{}
	} else {
		r.Ingredients = append([]string(nil), r.Ingredients...)
	}
	return r
}

// UserStore holds users keyed by id with unique username and email.
type UserStore struct {
	mu     sync.RWMutex
	users  map[int64]model.User
	nextID int64
}

// NewUserStore returns an empty store whose first id is 1.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[int64]model.User), nextID: 1}
}

// Create returns a Conflict when the username or the email is already taken.
func (s *UserStore) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return apperror.Conflict("username already used")
		}
		if u.Email == user.Email {
			return apperror.Conflict("email already used")
		}
	}

	now := time.Now().UTC()
	user.ID = s.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	s.nextID++

	s.users[user.ID] = *user
	return nil
}

// GetByID, GetByUsername and GetByEmail return copies.
func (s *UserStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user")
	}
	return &u, nil
}

// GetByUsername looks up an exact username.
func (s *UserStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return s.find(func(u model.User) bool { return u.Username == username })
}

// GetByEmail looks up an exact (already lower-cased) email.
func (s *UserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return s.find(func(u model.User) bool { return u.Email == email })
}

// Update writes the mutable fields: password hash, active flag, avatar.
func (s *UserStore) Update(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[user.ID]
	if !ok {
		return apperror.NotFound("user")
	}
	stored.PasswordHash = user.PasswordHash
	stored.IsActive = user.IsActive
	stored.AvatarImage = user.AvatarImage
	stored.UpdatedAt = time.Now().UTC()
	user.UpdatedAt = stored.UpdatedAt

	s.users[user.ID] = stored
	return nil
}

func (s *UserStore) find(match func(model.User) bool) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user")
}
