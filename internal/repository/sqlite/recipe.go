package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/repository"
)

// compile-time check that *RecipeDB implements repository.RecipeRepository
var _ repository.RecipeRepository = (*RecipeDB)(nil)

// RecipeDB is the recipes table.
type RecipeDB struct {
	conn *sql.DB
}

const recipeColumns = `id, name, description, num_of_servings, cook_time, directions,
	ingredients, cover_image, is_publish, user_id, created_at, updated_at`

// sortColumns maps the allow-listed sort keys to SQL. Only values from this
// map are ever interpolated into a query.
var sortColumns = map[string]string{
	repository.SortCreatedAt:     "created_at",
	repository.SortCookTime:      "cook_time",
	repository.SortNumOfServings: "num_of_servings",
	repository.SortID:            "id",
}

// Create inserts a new recipe; the ID and timestamps are written back into recipe.
func (r *RecipeDB) Create(ctx context.Context, recipe *model.Recipe) error {
	ingredients, err := encodeIngredients(recipe.Ingredients)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	recipe.CreatedAt = now
	recipe.UpdatedAt = now

	res, err := r.conn.ExecContext(ctx,
		`INSERT INTO recipes (name, description, num_of_servings, cook_time, directions,
		                      ingredients, cover_image, is_publish, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recipe.Name,
		recipe.Description,
		recipe.NumOfServings,
		recipe.CookTime,
		recipe.Directions,
		ingredients,
		recipe.CoverImage,
		recipe.IsPublish,
		recipe.UserID,
		toUnix(recipe.CreatedAt),
		toUnix(recipe.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating recipe: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading recipe id: %w", err)
	}
	recipe.ID = id

	return nil
}

// GetByID returns apperror.ErrNotFound when no recipe has the given id.
func (r *RecipeDB) GetByID(ctx context.Context, id int64) (*model.Recipe, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+recipeColumns+` FROM recipes WHERE id = ?`, id)

	recipe, err := scanRecipe(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("recipe")
		}
		return nil, fmt.Errorf("sqlite: getting recipe %d: %w", id, err)
	}
	return recipe, nil
}

// ListPublished returns one page of published recipes.
func (r *RecipeDB) ListPublished(ctx context.Context, q repository.RecipeQuery) (repository.RecipePage, error) {
	q = q.Normalize()

	where := []string{"is_publish = 1"}
	var args []any
	if q.Q != "" {
		like := "%" + escapeLike(q.Q) + "%"
		where = append(where, `(name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}

	order := fmt.Sprintf("%s %s, id %s", sortColumns[q.Sort], strings.ToUpper(q.Order), strings.ToUpper(q.Order))
	return r.page(ctx, strings.Join(where, " AND "), args, order, q.Page, q.PerPage)
}

// likeEscaper makes the search text match literally: % and _ are LIKE
// wildcards and \ is the escape character named in the query.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// ListByUser returns one page of a user's recipes filtered by visibility,
// newest first.
func (r *RecipeDB) ListByUser(ctx context.Context, userID int64, visibility model.Visibility, page, perPage int) (repository.RecipePage, error) {
	page, perPage = repository.NormalizePage(page, perPage)

	where := "user_id = ?"
	switch visibility {
	case model.VisibilityAll:
	case model.VisibilityPrivate:
		where += " AND is_publish = 0"
	default:
		where += " AND is_publish = 1"
	}

	return r.page(ctx, where, []any{userID}, "created_at DESC, id DESC", page, perPage)
}

// page runs a COUNT and a LIMIT/OFFSET SELECT over the same WHERE clause.
func (r *RecipeDB) page(ctx context.Context, where string, args []any, order string, page, perPage int) (repository.RecipePage, error) {
	result := repository.RecipePage{Page: page, PerPage: perPage}

	if err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recipes WHERE `+where, args...,
	).Scan(&result.Total); err != nil {
		return result, fmt.Errorf("sqlite: counting recipes: %w", err)
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+recipeColumns+` FROM recipes WHERE `+where+
			` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, perPage, repository.Offset(page, perPage))...,
	)
	if err != nil {
		return result, fmt.Errorf("sqlite: listing recipes: %w", err)
	}
	defer rows.Close()

	result.Recipes = make([]model.Recipe, 0, perPage)
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return result, fmt.Errorf("sqlite: scanning recipe row: %w", err)
		}
		result.Recipes = append(result.Recipes, *recipe)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("sqlite: iterating recipes: %w", err)
	}

	return result, nil
}

// Update persists every mutable column. user_id and created_at are never
// written after creation.
func (r *RecipeDB) Update(ctx context.Context, recipe *model.Recipe) error {
	ingredients, err := encodeIngredients(recipe.Ingredients)
	if err != nil {
		return err
	}
	recipe.UpdatedAt = time.Now().UTC()

	result, err := r.conn.ExecContext(ctx,
		`UPDATE recipes
		 SET name = ?, description = ?, num_of_servings = ?, cook_time = ?, directions = ?,
		     ingredients = ?, cover_image = ?, is_publish = ?, updated_at = ?
		 WHERE id = ?`,
		recipe.Name,
		recipe.Description,
		recipe.NumOfServings,
		recipe.CookTime,
		recipe.Directions,
		ingredients,
		recipe.CoverImage,
		recipe.IsPublish,
		toUnix(recipe.UpdatedAt),
		recipe.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating recipe %d: %w", recipe.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("recipe")
	}

	return nil
}

// Delete removes a recipe by its ID.
func (r *RecipeDB) Delete(ctx context.Context, id int64) error {
	result, err := r.conn.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting recipe %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("recipe")
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecipe(s scanner) (*model.Recipe, error) {
	var (
		recipe      model.Recipe
		ingredients string
		created     int64
		updated     int64
	)
	err := s.Scan(
		&recipe.ID,
		&recipe.Name,
		&recipe.Description,
		&recipe.NumOfServings,
		&recipe.CookTime,
		&recipe.Directions,
		&ingredients,
		&recipe.CoverImage,
		&recipe.IsPublish,
		&recipe.UserID,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(ingredients), &recipe.Ingredients); err != nil {
		return nil, fmt.Errorf("decoding ingredients of recipe %d: %w", recipe.ID, err)
	}
	if recipe.Ingredients == nil {
		recipe.Ingredients = []string{}
	}
	recipe.CreatedAt = fromUnix(created)
	recipe.UpdatedAt = fromUnix(updated)

	return &recipe, nil
}

func encodeIngredients(ingredients []string) (string, error) {
	if ingredients == nil {
		ingredients = []string{}
	}
	b, err := json.Marshal(ingredients)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding ingredients: %w", err)
	}
	return string(b), nil
}
