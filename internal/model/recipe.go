// Package model defines the data structures used throughout the application.
package model

import "time"

// Recipe is a user-owned recipe.
//
// UserID is the owner. It is stamped once by the service at creation time and
// never reassigned; repositories do not include it in UPDATE statements.
// Unpublished recipes (IsPublish == false) are visible only to their owner.
type Recipe struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	NumOfServings int       `json:"num_of_servings"`
	CookTime      int       `json:"cook_time"` // minutes
	Directions    string    `json:"directions"`
	Ingredients   []string  `json:"ingredients"`
	CoverImage    string    `json:"-"`         // storage reference
	CoverURL      string    `json:"cover_url"` // filled in by the service from CoverImage
	IsPublish     bool      `json:"is_publish"`
	UserID        int64     `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Visibility is the scope applied when listing one user's recipes.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityAll     Visibility = "all"
)
