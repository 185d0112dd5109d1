// Package repository declares the storage interfaces the services depend on.
//
// WHY INTERFACES?
// The service layer never imports database/sql. It asks for a
// RecipeRepository and a UserRepository, and server.New decides which
// implementation to hand over:
//
//	sqlite  production, backed by modernc.org/sqlite and goose migrations
//	memory  tests and STORE=memory, plain maps behind a mutex
//
// Both share the query normalisation below (allow-listed sort keys, page
// clamping) so a listing behaves identically whichever store serves it.
// repotest holds data-driven cases both stores run against.
//
// ERRORS:
// Stores speak in apperror values: NotFound for a missing row, Conflict for
// a UNIQUE violation. Anything else is an infrastructure failure wrapped
// with the operation that hit it.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/smilecook/internal/model"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100

	SortCreatedAt     = "created_at"
	SortCookTime      = "cook_time"
	SortNumOfServings = "num_of_servings"
	SortID            = "id"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// sortable is the allow-list of columns a listing may be ordered by.
var sortable = map[string]bool{
	SortCreatedAt:     true,
	SortCookTime:      true,
	SortNumOfServings: true,
	SortID:            true,
}

// RecipeQuery describes a page of the published recipe listing.
type RecipeQuery struct {
	Q       string
	Sort    string
	Order   string
	Page    int
	PerPage int
}

// Normalize replaces anything outside the allow-lists with the defaults:
// unknown sort → created_at, unknown order → desc, page < 1 → 1,
// per_page outside 1..MaxPerPage → DefaultPerPage / MaxPerPage.
func (q RecipeQuery) Normalize() RecipeQuery {
	q.Q = strings.TrimSpace(q.Q)
	if !sortable[q.Sort] {
		q.Sort = SortCreatedAt
	}
	q.Order = strings.ToLower(q.Order)
	if q.Order != OrderAsc && q.Order != OrderDesc {
		q.Order = OrderDesc
	}
	q.Page, q.PerPage = NormalizePage(q.Page, q.PerPage)
	return q
}

// CacheKey identifies the normalised query; two queries that normalise to
// the same values share a key.
func (q RecipeQuery) CacheKey() string {
	n := q.Normalize()
	return fmt.Sprintf("q=%s&sort=%s&order=%s&page=%d&per_page=%d",
		n.Q, n.Sort, n.Order, n.Page, n.PerPage)
}

// NormalizePage clamps pagination parameters.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// Offset is the number of rows skipped before the given page.
func Offset(page, perPage int) int {
	return (page - 1) * perPage
}

// RecipePage is one page of recipes plus the totals needed for links.
type RecipePage struct {
	Recipes []model.Recipe
	Page    int
	PerPage int
	Total   int
}

// Pages is the total number of pages, at least 1.
func (p RecipePage) Pages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// RecipeRepository is everything the services need to store recipes.
//
// CONTRACT FOR IMPLEMENTATIONS:
//   - Create assigns ID, CreatedAt and UpdatedAt and writes them back.
//   - GetByID, Update and Delete return apperror.NotFound("recipe") when the
//     id does not exist.
//   - Update never changes UserID or CreatedAt, whatever the argument holds.
//   - ListPublished and ListByUser normalise their input with
//     RecipeQuery.Normalize / NormalizePage, so the stores agree on defaults.
//   - Search text is matched literally and case-insensitively against name
//     or description.
//
// The interface lives here, next to its consumers' needs, not inside the
// sqlite package. The service depends on this package only, so swapping
// SQLite for the memory store is a one-line change in server.New.
type RecipeRepository interface {
	Create(ctx context.Context, recipe *model.Recipe) error
	GetByID(ctx context.Context, id int64) (*model.Recipe, error)
	ListPublished(ctx context.Context, q RecipeQuery) (RecipePage, error)
	ListByUser(ctx context.Context, userID int64, visibility model.Visibility, page, perPage int) (RecipePage, error)
	Update(ctx context.Context, recipe *model.Recipe) error
	Delete(ctx context.Context, id int64) error
}

// UserRepository stores accounts.
//
// Create returns apperror.Conflict("username already used") or
// ("email already used") when either is taken; lookups return
// apperror.NotFound("user"). Update writes the password hash, the active
// flag and the avatar; username and email never change after signup.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}
