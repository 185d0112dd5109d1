package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/smilecook/internal/access"
	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/auth"
	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/repository"
	"github.com/sakif/smilecook/internal/service"
	"github.com/sakif/smilecook/internal/storage"
)

// RecipeService is what RecipeHandler needs from the service layer.
// UserHandler uses it too, for GET /users/{username}/recipes.
type RecipeService interface {
	Create(ctx context.Context, actor access.Actor, in service.RecipeInput) (*model.Recipe, error)
	Get(ctx context.Context, actor access.Actor, id int64) (*model.Recipe, error)
	Replace(ctx context.Context, actor access.Actor, id int64, in service.RecipeInput) (*model.Recipe, error)
	Patch(ctx context.Context, actor access.Actor, id int64, p service.RecipePatch) (*model.Recipe, error)
	SetPublished(ctx context.Context, actor access.Actor, id int64, publish bool) error
	Delete(ctx context.Context, actor access.Actor, id int64) error
	SetCover(ctx context.Context, actor access.Actor, id int64, filename string, r io.Reader) (*model.Recipe, error)
	ListPublished(ctx context.Context, q repository.RecipeQuery) (repository.RecipePage, error)
	ListByUser(ctx context.Context, actor access.Actor, username string, visibility model.Visibility, page, perPage int) (repository.RecipePage, error)
}

// RecipeHandler serves /recipes.
//
// The caller is read from the request context (auth middleware) and handed
// to the service as an access.Actor; ownership and visibility rules live in
// the service, not here.
type RecipeHandler struct {
	recipes RecipeService
	baseURL string
	logger  *slog.Logger
}

// NewRecipeHandler creates a RecipeHandler. baseURL prefixes pagination links.
func NewRecipeHandler(recipes RecipeService, baseURL string, logger *slog.Logger) *RecipeHandler {
	return &RecipeHandler{recipes: recipes, baseURL: baseURL, logger: logger}
}

// HandleList returns one page of published recipes.
//
// HTTP: GET /recipes?q=&page=&per_page=&sort=&order=
func (h *RecipeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := repository.RecipeQuery{
		Q:       query.Get("q"),
		Sort:    query.Get("sort"),
		Order:   query.Get("order"),
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "per_page"),
	}

	page, err := h.recipes.ListPublished(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageResponse(h.baseURL, r, page))
}

// HandleCreate stores a new draft owned by the caller.
//
// HTTP: POST /recipes
func (h *RecipeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.RecipeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	recipe, err := h.recipes.Create(r.Context(), auth.ActorFromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, recipe)
}

// HandleGet returns a recipe: 404 if missing, 403 if it is someone else's draft.
//
// HTTP: GET /recipes/{id}
func (h *RecipeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := recipeID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	recipe, err := h.recipes.Get(r.Context(), auth.ActorFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// HandleReplace overwrites every editable field.
//
// HTTP: PUT /recipes/{id}
func (h *RecipeHandler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	id, err := recipeID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var in service.RecipeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	recipe, err := h.recipes.Replace(r.Context(), auth.ActorFromContext(r.Context()), id, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// HandlePatch changes only the fields present in the body.
//
// HTTP: PATCH /recipes/{id}
func (h *RecipeHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	id, err := recipeID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var p service.RecipePatch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	recipe, err := h.recipes.Patch(r.Context(), auth.ActorFromContext(r.Context()), id, p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// HandleDelete removes a recipe.
//
// HTTP: DELETE /recipes/{id}
func (h *RecipeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := recipeID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.recipes.Delete(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePublish makes a recipe public.
//
// HTTP: PUT /recipes/{id}/publish
func (h *RecipeHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, true)
}

// HandleUnpublish hides a recipe again.
//
// HTTP: DELETE /recipes/{id}/publish
func (h *RecipeHandler) HandleUnpublish(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, false)
}

func (h *RecipeHandler) setPublished(w http.ResponseWriter, r *http.Request, publish bool) {
	id, err := recipeID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.recipes.SetPublished(r.Context(), auth.ActorFromContext(r.Context()), id, publish); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCover replaces the cover image with the multipart field "cover".
//
// HTTP: PUT /recipes/{id}/cover
func (h *RecipeHandler) HandleCover(w http.ResponseWriter, r *http.Request) {
	id, err := recipeID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	file, filename, err := formFile(w, r, "cover")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer file.Close()

	recipe, err := h.recipes.SetCover(r.Context(), auth.ActorFromContext(r.Context()), id, filename, file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// formFile opens one uploaded file from a multipart body limited to
// storage.MaxUploadBytes.
func formFile(w http.ResponseWriter, r *http.Request, field string) (io.ReadCloser, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadBytes)
	if err := r.ParseMultipartForm(storage.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", apperror.ValidationFailed(field, "File is too large")
		}
		return nil, "", apperror.ValidationFailed(field, "Please upload file")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", apperror.ValidationFailed(field, "Please upload file")
	}
	return file, header.Filename, nil
}
