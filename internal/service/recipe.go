package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/sakif/smilecook/internal/access"
	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/cache"
	"github.com/sakif/smilecook/internal/metrics"
	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/repository"
	"github.com/sakif/smilecook/internal/storage"
)

const (
	// PublishedCachePrefix namespaces every cached page of the published
	// listing so one DeletePrefix drops them all.
	PublishedCachePrefix = "recipes:published:"
	PublishedCacheTTL    = 10 * time.Minute

	// PublishedGenerationKey holds the current generation of the published
	// listing. It lives outside PublishedCachePrefix so DeletePrefix keeps it.
	//
	// WHY A GENERATION?
	// A listing read can race a mutation: the reader loads a page, the owner
	// unpublishes and invalidates, then the reader writes its stale page
	// back. Every page key carries the generation the reader saw before it
	// went to the store, and invalidate moves the generation forward before
	// deleting, so a page written late lands under a key nobody reads again.
	PublishedGenerationKey = "recipes:generation"
)

// RecipeInput is the full body of POST /recipes and PUT /recipes/{id}.
//
// VALIDATION TAGS:
// The `validate` tags are read by go-playground/validator. omitempty on the
// numeric fields means 0 is "not given"; any other value must be in range.
// Field names in error messages come from the json tag (see newValidator),
// so clients see "num_of_servings", not "NumOfServings".
type RecipeInput struct {
	Name          string   `json:"name" validate:"required,max=100"`
	Description   string   `json:"description" validate:"required,max=200"`
	NumOfServings int      `json:"num_of_servings" validate:"omitempty,min=1,max=50"`
	CookTime      int      `json:"cook_time" validate:"omitempty,min=1,max=300"`
	Directions    string   `json:"directions" validate:"max=1000"`
	Ingredients   []string `json:"ingredients" validate:"omitempty,max=100,dive,required,max=200"`
}

func (in *RecipeInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Directions = strings.TrimSpace(in.Directions)
	in.Ingredients = trimAll(in.Ingredients)
}

// RecipePatch is the body of PATCH /recipes/{id}.
//
// POINTERS FOR PARTIAL UPDATES:
// Every field is a pointer so "absent from the JSON" (nil) can be told apart
// from "present". A present field holding its zero value ("" / 0 / []) is
// treated exactly like an absent one: the stored value is kept. normalize
// turns those into nil before validation, so {"cook_time": 0} never trips
// the min=1 rule.
type RecipePatch struct {
	Name          *string   `json:"name" validate:"omitempty,max=100"`
	Description   *string   `json:"description" validate:"omitempty,max=200"`
	NumOfServings *int      `json:"num_of_servings" validate:"omitempty,min=1,max=50"`
	CookTime      *int      `json:"cook_time" validate:"omitempty,min=1,max=300"`
	Directions    *string   `json:"directions" validate:"omitempty,max=1000"`
	Ingredients   *[]string `json:"ingredients" validate:"omitempty,max=100,dive,required,max=200"`
}

// normalize trims the strings and then drops every field that holds its
// zero value, so validation only sees the fields that will change.
func (p *RecipePatch) normalize() {
	p.Name = trimOrNil(p.Name)
	p.Description = trimOrNil(p.Description)
	p.Directions = trimOrNil(p.Directions)
	if p.NumOfServings != nil && *p.NumOfServings == 0 {
		p.NumOfServings = nil
	}
	if p.CookTime != nil && *p.CookTime == 0 {
		p.CookTime = nil
	}
	if p.Ingredients != nil {
		if len(*p.Ingredients) == 0 {
			p.Ingredients = nil
		} else {
			trimmed := trimAll(*p.Ingredients)
			p.Ingredients = &trimmed
		}
	}
}

// apply copies the fields left after normalize onto r.
func (p *RecipePatch) apply(r *model.Recipe) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.NumOfServings != nil {
		r.NumOfServings = *p.NumOfServings
	}
	if p.CookTime != nil {
		r.CookTime = *p.CookTime
	}
	if p.Directions != nil {
		r.Directions = *p.Directions
	}
	if p.Ingredients != nil {
		r.Ingredients = *p.Ingredients
	}
}

func trimOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func trimAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// RecipeService runs the recipe lifecycle: create, read, replace, patch,
// publish, delete, cover upload and the two listings.
//
// STRUCT FIELDS:
//   - recipes, users: the stores (interfaces, injected)
//   - cache: holds pages of the published listing
//   - files, images: where uploads go and the pool that processes them
//   - metrics, logger: observability, both safe to share
//   - validate: one validator instance, it caches struct metadata
//
// All fields are unexported; callers only see the methods.
type RecipeService struct {
	recipes  repository.RecipeRepository
	users    repository.UserRepository
	cache    cache.Cache
	files    storage.Storage
	images   *storage.Processor
	metrics  *metrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// NewRecipeService wires a RecipeService. Every collaborator is required;
// pass cache.NewMemory() and storage.NewProcessor(0) when nothing better is
// available.
func NewRecipeService(
	recipes repository.RecipeRepository,
	users repository.UserRepository,
	c cache.Cache,
	files storage.Storage,
	images *storage.Processor,
	m *metrics.Metrics,
	logger *slog.Logger,
) *RecipeService {
	return &RecipeService{
		recipes:  recipes,
		users:    users,
		cache:    c,
		files:    files,
		images:   images,
		metrics:  m,
		logger:   logger,
		validate: newValidator(),
	}
}

// Create stores a new unpublished recipe owned by actor.
func (s *RecipeService) Create(ctx context.Context, actor access.Actor, in RecipeInput) (*model.Recipe, error) {
	ownerID, ok := actor.ID()
	if !ok {
		return nil, apperror.Unauthorized("valid authentication required")
	}

	in.normalize()
	if err := validate(s.validate, in); err != nil {
		return nil, err
	}

	recipe := &model.Recipe{
		Name:          in.Name,
		Description:   in.Description,
		NumOfServings: in.NumOfServings,
		CookTime:      in.CookTime,
		Directions:    in.Directions,
		Ingredients:   nonNil(in.Ingredients),
		UserID:        ownerID,
	}

	if err := s.recipes.Create(ctx, recipe); err != nil {
		s.logger.Error("failed to create recipe",
			slog.Int64("user_id", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating recipe: %w", err)
	}

	s.logger.Info("recipe created",
		slog.Int64("id", recipe.ID),
		slog.Int64("user_id", ownerID),
	)
	return s.decorate(recipe), nil
}

// Get returns a recipe if actor may see it: 404 first, then 403.
func (s *RecipeService) Get(ctx context.Context, actor access.Actor, id int64) (*model.Recipe, error) {
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeView(actor, recipe); err != nil {
		return nil, err
	}
	return s.decorate(recipe), nil
}

// Replace overwrites every editable field (PUT).
func (s *RecipeService) Replace(ctx context.Context, actor access.Actor, id int64, in RecipeInput) (*model.Recipe, error) {
	recipe, err := s.loadForMutation(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	in.normalize()
	if err := validate(s.validate, in); err != nil {
		return nil, err
	}

	recipe.Name = in.Name
	recipe.Description = in.Description
	recipe.NumOfServings = in.NumOfServings
	recipe.CookTime = in.CookTime
	recipe.Directions = in.Directions
	recipe.Ingredients = nonNil(in.Ingredients)

	return s.save(ctx, recipe, recipe.IsPublish)
}

// Patch changes only the fields present with a non-zero value.
func (s *RecipeService) Patch(ctx context.Context, actor access.Actor, id int64, p RecipePatch) (*model.Recipe, error) {
	recipe, err := s.loadForMutation(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	p.normalize()
	if err := validate(s.validate, p); err != nil {
		return nil, err
	}

	p.apply(recipe)
	return s.save(ctx, recipe, recipe.IsPublish)
}

// SetPublished publishes or unpublishes a recipe. Both directions are
// persisted.
func (s *RecipeService) SetPublished(ctx context.Context, actor access.Actor, id int64, publish bool) error {
	recipe, err := s.loadForMutation(ctx, actor, id)
	if err != nil {
		return err
	}

	wasPublished := recipe.IsPublish
	recipe.IsPublish = publish
	if _, err := s.save(ctx, recipe, wasPublished); err != nil {
		return err
	}

	s.logger.Info("recipe visibility changed",
		slog.Int64("id", id),
		slog.Bool("published", publish),
	)
	return nil
}

// Delete removes a recipe and its cover image.
func (s *RecipeService) Delete(ctx context.Context, actor access.Actor, id int64) error {
	recipe, err := s.loadForMutation(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.recipes.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting recipe %d: %w", id, err)
	}

	removeImage(ctx, s.files, s.logger, recipe.CoverImage)
	s.invalidate(ctx, recipe.IsPublish)

	s.logger.Info("recipe deleted", slog.Int64("id", id))
	return nil
}

// SetCover replaces a recipe's cover image with the uploaded file.
func (s *RecipeService) SetCover(ctx context.Context, actor access.Actor, id int64, filename string, r io.Reader) (*model.Recipe, error) {
	recipe, err := s.loadForMutation(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	ref, err := saveImage(ctx, s.files, s.images, s.metrics, storage.FolderRecipes, "cover", filename, r)
	if err != nil {
		return nil, err
	}

	old := recipe.CoverImage
	recipe.CoverImage = ref
	saved, err := s.save(ctx, recipe, recipe.IsPublish)
	if err != nil {
		removeImage(ctx, s.files, s.logger, ref)
		return nil, err
	}

	removeImage(ctx, s.files, s.logger, old)
	return saved, nil
}

// ListPublished returns one page of published recipes. Pages are cached per
// normalised query for PublishedCacheTTL; any change to a published recipe
// drops them all.
func (s *RecipeService) ListPublished(ctx context.Context, q repository.RecipeQuery) (repository.RecipePage, error) {
	gen, cacheable := s.generation(ctx)
	key := PublishedCachePrefix + gen + ":" + q.CacheKey()

	if cacheable {
		if page, ok := s.cachedPage(ctx, key); ok {
			return page, nil
		}
	}

	page, err := s.recipes.ListPublished(ctx, q)
	if err != nil {
		return repository.RecipePage{}, fmt.Errorf("listing published recipes: %w", err)
	}
	// Cached pages hold the public URLs since CoverImage is not serialised.
	page = s.decoratePage(page)

	if !cacheable {
		return page, nil
	}
	if encoded, err := json.Marshal(page); err == nil {
		if err := s.cache.Set(ctx, key, encoded, PublishedCacheTTL); err != nil {
			s.logger.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	return page, nil
}

// generation reads the current listing generation. A missing key is
// generation "0"; a failing cache turns caching off for this call.
func (s *RecipeService) generation(ctx context.Context) (string, bool) {
	b, err := s.cache.Get(ctx, PublishedGenerationKey)
	switch {
	case err == nil:
		return string(b), true
	case errors.Is(err, cache.ErrMiss):
		return "0", true
	default:
		s.metrics.CacheError()
		s.logger.Warn("cache read failed", slog.String("key", PublishedGenerationKey), slog.String("error", err.Error()))
		return "", false
	}
}

func (s *RecipeService) cachedPage(ctx context.Context, key string) (repository.RecipePage, bool) {
	cached, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var page repository.RecipePage
		if err := json.Unmarshal(cached, &page); err == nil {
			s.metrics.CacheHit()
			return page, true
		}
		s.metrics.CacheError()
	case errors.Is(err, cache.ErrMiss):
		s.metrics.CacheMiss()
	default:
		s.metrics.CacheError()
		s.logger.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return repository.RecipePage{}, false
}

// ListByUser lists a user's recipes. Only the owner may ask for private or
// all; everyone else gets the published ones.
func (s *RecipeService) ListByUser(ctx context.Context, actor access.Actor, username string, visibility model.Visibility, page, perPage int) (repository.RecipePage, error) {
	owner, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return repository.RecipePage{}, err
	}

	vis := access.ResolveVisibility(actor, owner.ID, visibility)
	result, err := s.recipes.ListByUser(ctx, owner.ID, vis, page, perPage)
	if err != nil {
		return repository.RecipePage{}, fmt.Errorf("listing recipes of %s: %w", username, err)
	}
	return s.decoratePage(result), nil
}

// loadForMutation fetches a recipe and checks actor owns it.
//
// It is the first two steps of the pipeline for every mutating method, which
// is what keeps the 404-before-403 order identical across PUT, PATCH,
// DELETE, publish and cover.
func (s *RecipeService) loadForMutation(ctx context.Context, actor access.Actor, id int64) (*model.Recipe, error) {
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.AuthorizeMutate(actor, recipe); err != nil {
		actorID, _ := actor.ID()
		s.logger.Warn("recipe mutation denied",
			slog.Int64("id", id),
			slog.Int64("actor_id", actorID),
		)
		return nil, err
	}
	return recipe, nil
}

// save persists recipe and drops the published cache when the recipe was
// published before or is published now.
func (s *RecipeService) save(ctx context.Context, recipe *model.Recipe, wasPublished bool) (*model.Recipe, error) {
	if err := s.recipes.Update(ctx, recipe); err != nil {
		return nil, fmt.Errorf("updating recipe %d: %w", recipe.ID, err)
	}
	s.invalidate(ctx, wasPublished || recipe.IsPublish)
	return s.decorate(recipe), nil
}

// invalidate drops every cached page of the published listing. Changes to a
// recipe that was never and is not now published cannot show up in that
// listing, so they skip the round trip to the cache.
func (s *RecipeService) invalidate(ctx context.Context, affectsPublished bool) {
	if !affectsPublished {
		return
	}
	// Move the generation first; DeletePrefix only frees the old pages.
	if err := s.cache.Set(ctx, PublishedGenerationKey, []byte(xid.New().String()), 0); err != nil {
		s.logger.Error("failed to advance published recipe generation", slog.String("error", err.Error()))
	}
	if err := s.cache.DeletePrefix(ctx, PublishedCachePrefix); err != nil {
		s.logger.Error("failed to invalidate published recipe cache", slog.String("error", err.Error()))
	}
}

// decorate fills the fields that only exist in responses: the public cover
// URL and a non-nil ingredient list (so JSON shows [] rather than null).
func (s *RecipeService) decorate(r *model.Recipe) *model.Recipe {
	r.CoverURL = s.files.URL(r.CoverImage)
	r.Ingredients = nonNil(r.Ingredients)
	return r
}

func (s *RecipeService) decoratePage(p repository.RecipePage) repository.RecipePage {
	for i := range p.Recipes {
		s.decorate(&p.Recipes[i])
	}
	if p.Recipes == nil {
		p.Recipes = []model.Recipe{}
	}
	return p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
