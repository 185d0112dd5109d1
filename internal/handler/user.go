package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/smilecook/internal/access"
	"github.com/sakif/smilecook/internal/auth"
	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/service"
)

// UserService is what UserHandler needs from the service layer.
type UserService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Get(ctx context.Context, actor access.Actor, username string) (*service.Profile, error)
	Me(ctx context.Context, actor access.Actor) (*model.User, error)
	Activate(ctx context.Context, token string) error
	SetAvatar(ctx context.Context, actor access.Actor, filename string, r io.Reader) (*model.User, error)
}

// UserHandler serves /users and /me.
type UserHandler struct {
	users   UserService
	recipes RecipeService
	baseURL string
	logger  *slog.Logger
}

// NewUserHandler creates a UserHandler. recipes serves the per-user
// listing; baseURL prefixes its pagination links.
func NewUserHandler(users UserService, recipes RecipeService, baseURL string, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, recipes: recipes, baseURL: baseURL, logger: logger}
}

// HandleRegister creates an inactive account and mails the activation link.
//
// HTTP: POST /users
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.users.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// HandleGet returns a profile; the email is only included for its owner.
//
// HTTP: GET /users/{username}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	profile, err := h.users.Get(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleRecipes lists a user's recipes. Only the owner can see drafts.
//
// HTTP: GET /users/{username}/recipes?visibility=public|private|all&page=&per_page=
func (h *UserHandler) HandleRecipes(w http.ResponseWriter, r *http.Request) {
	visibility := model.Visibility(strings.ToLower(r.URL.Query().Get("visibility")))

	page, err := h.recipes.ListByUser(r.Context(),
		auth.ActorFromContext(r.Context()),
		chi.URLParam(r, "username"),
		visibility,
		queryInt(r, "page"),
		queryInt(r, "per_page"),
	)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageResponse(h.baseURL, r, page))
}

// HandleActivate activates the account named by the emailed token.
//
// HTTP: GET /users/activate/{token}
func (h *UserHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Activate(r.Context(), chi.URLParam(r, "token")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAvatar replaces the caller's avatar with the multipart field "avatar".
//
// HTTP: PUT /users/avatar
func (h *UserHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	file, filename, err := formFile(w, r, "avatar")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer file.Close()

	user, err := h.users.SetAvatar(r.Context(), auth.ActorFromContext(r.Context()), filename, file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleMe returns the caller's full profile.
//
// HTTP: GET /me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Me(r.Context(), auth.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
