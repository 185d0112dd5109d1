package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/model"
)

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{
		Username:     "jack",
		Email:        "jack@example.com",
		PasswordHash: "$2a$04$hash",
	}
	if err := db.Users().Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == 0 {
		t.Error("Create() did not set user.ID")
	}

	found, err := db.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Username != "jack" || found.Email != "jack@example.com" {
		t.Errorf("GetByID() = %+v", found)
	}
	if found.IsActive {
		t.Error("new users should start inactive")
	}
}

func TestUserCreate_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "jack")

	err := db.Users().Create(context.Background(), &model.User{
		Username:     "jack",
		Email:        "other@example.com",
		PasswordHash: "x",
	})

	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
	if err.Error() != "username already used" {
		t.Errorf("message = %q, want %q", err.Error(), "username already used")
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "jack")

	err := db.Users().Create(context.Background(), &model.User{
		Username:     "jill",
		Email:        "jack@example.com",
		PasswordHash: "x",
	})

	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
	if err.Error() != "email already used" {
		t.Errorf("message = %q, want %q", err.Error(), "email already used")
	}
}

func TestUserLookups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "jack")

	byName, err := db.Users().GetByUsername(ctx, "jack")
	if err != nil || byName.ID != user.ID {
		t.Errorf("GetByUsername() = %v, %v", byName, err)
	}

	byEmail, err := db.Users().GetByEmail(ctx, "jack@example.com")
	if err != nil || byEmail.ID != user.ID {
		t.Errorf("GetByEmail() = %v, %v", byEmail, err)
	}

	if _, err := db.Users().GetByUsername(ctx, "nobody"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByUsername(nobody) error = %v, want ErrNotFound", err)
	}
	if _, err := db.Users().GetByID(ctx, 999); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID(999) error = %v, want ErrNotFound", err)
	}
}

func TestUserUpdate_Activation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "jack")

	user.IsActive = true
	user.AvatarImage = "avatars/jack.jpg"
	if err := db.Users().Update(ctx, user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	found, err := db.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !found.IsActive || found.AvatarImage != "avatars/jack.jpg" {
		t.Errorf("Update() not persisted: %+v", found)
	}
}

func TestUserUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Users().Update(context.Background(), &model.User{ID: 5})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}
