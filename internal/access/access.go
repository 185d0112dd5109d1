// Package access holds the ownership and visibility rules for recipes.
//
// Everything here is a pure function of (Actor, Recipe). Services call the
// Authorize* helpers only after the store has confirmed the recipe exists,
// so a missing recipe is always reported as 404 before any 403.
//
// THE TWO RULES:
//
//	view:   recipe.IsPublish || actor owns the recipe
//	mutate: actor is authenticated && actor owns the recipe
//
// Publishing never grants anyone else write access.
package access

import (
	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/model"
)

// ForbiddenMessage is the body message for every 403 the gate produces.
const ForbiddenMessage = "Access not allowed"

// Actor is the caller of an operation: either anonymous or a user id.
// The zero value is anonymous.
type Actor struct {
	id    int64
	authn bool
}

// Anonymous returns an actor with no identity.
func Anonymous() Actor { return Actor{} }

// User returns an authenticated actor.
func User(id int64) Actor { return Actor{id: id, authn: true} }

// ID returns the user id and whether the actor is authenticated.
func (a Actor) ID() (int64, bool) { return a.id, a.authn }

// Authenticated reports whether the actor carries a verified identity.
func (a Actor) Authenticated() bool { return a.authn }

// Is reports whether the actor is the user with the given id.
// Anonymous actors are nobody.
func (a Actor) Is(userID int64) bool {
	return a.authn && a.id == userID
}

// CanView reports whether actor may read recipe.
func CanView(actor Actor, recipe *model.Recipe) bool {
	return recipe.IsPublish || actor.Is(recipe.UserID)
}

// CanMutate reports whether actor may change or delete recipe.
func CanMutate(actor Actor, recipe *model.Recipe) bool {
	return actor.Authenticated() && actor.Is(recipe.UserID)
}

// AuthorizeView returns a Forbidden error when actor may not read recipe.
func AuthorizeView(actor Actor, recipe *model.Recipe) error {
	if !CanView(actor, recipe) {
		return apperror.Forbidden(ForbiddenMessage)
	}
	return nil
}

// AuthorizeMutate returns a Forbidden error when actor may not change recipe.
func AuthorizeMutate(actor Actor, recipe *model.Recipe) error {
	if !CanMutate(actor, recipe) {
		return apperror.Forbidden(ForbiddenMessage)
	}
	return nil
}

// ResolveVisibility decides which of a user's recipes actor may list.
// Only the owner can widen the listing to private or all; everyone else,
// including an owner asking for something unknown, gets public.
func ResolveVisibility(actor Actor, ownerID int64, requested model.Visibility) model.Visibility {
	if actor.Is(ownerID) && (requested == model.VisibilityAll || requested == model.VisibilityPrivate) {
		return requested
	}
	return model.VisibilityPublic
}
