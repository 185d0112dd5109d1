package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/model"
	"github.com/sakif/smilecook/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users table.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, username, email, password_hash, is_active, avatar_image, created_at, updated_at`

// Create inserts a new user. A UNIQUE violation on username or email comes
// back as apperror.ErrConflict with the message clients expect.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, is_active, avatar_image, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.IsActive,
		user.AvatarImage,
		toUnix(user.CreatedAt),
		toUnix(user.UpdatedAt),
	)
	if err != nil {
		if col, ok := uniqueColumn(err); ok {
			return apperror.Conflict(conflictMessage(col))
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	user.ID = id

	return nil
}

// GetByID, GetByUsername and GetByEmail share getOne and return
// apperror.NotFound("user") on no rows.
func (u *UserDB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return u.getOne(ctx, `WHERE id = ?`, id)
}

// GetByUsername relies on the UNIQUE index on users.username.
func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.getOne(ctx, `WHERE username = ?`, username)
}

// GetByEmail expects the email lower-cased, as Register stores it.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, `WHERE email = ?`, email)
}

// Update persists is_active, avatar_image and password_hash.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, is_active = ?, avatar_image = ?, updated_at = ?
		 WHERE id = ?`,
		user.PasswordHash,
		user.IsActive,
		user.AvatarImage,
		toUnix(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user")
	}

	return nil
}

func (u *UserDB) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		user    model.User
		created int64
		updated int64
	)

	err := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users `+where, arg,
	).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.AvatarImage,
		&created,
		&updated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user")
		}
		return nil, fmt.Errorf("sqlite: getting user (%v): %w", arg, err)
	}

	user.CreatedAt = fromUnix(created)
	user.UpdatedAt = fromUnix(updated)
	return &user, nil
}

func conflictMessage(column string) string {
	switch column {
	case "username", "email":
		return column + " already used"
	default:
		return "user already exists"
	}
}
