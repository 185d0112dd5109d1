// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain. Schema changes are versioned SQL files embedded in
// the binary and applied with goose.
//
// Timestamps are stored as INTEGER unix nanoseconds so ORDER BY created_at is
// a plain numeric sort.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a sql.DB connection pool. The per-table repositories are reached
// through Recipes() and Users().
type DB struct {
	conn    *sql.DB
	recipes *RecipeDB
	users   *UserDB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/smilecook.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database, used by the tests
func New(ctx context.Context, dbPath string) (*DB, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	db := Wrap(conn)
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Open opens and configures the connection pool without migrating.
func Open(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a separate, empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	return conn, nil
}

// Wrap builds a DB around an already-open pool. Tests use it with sqlmock.
func Wrap(conn *sql.DB) *DB {
	db := &DB{conn: conn}
	db.recipes = &RecipeDB{conn: conn}
	db.users = &UserDB{conn: conn}
	return db
}

// Migrate applies every pending migration from the embedded migrations dir.
//
// A goose.Provider carries its own dialect, filesystem and version table, so
// nothing here touches goose's package-level state and two databases can be
// migrated side by side (the tests do exactly that).
func (db *DB) Migrate(ctx context.Context) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, migrations)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Recipes returns the recipe repository.
func (db *DB) Recipes() *RecipeDB { return db.recipes }

// Users returns the user repository.
func (db *DB) Users() *UserDB { return db.users }

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// uniqueColumn reports the column of a UNIQUE constraint violation, e.g.
// "username" for "UNIQUE constraint failed: users.username".
func uniqueColumn(err error) (string, bool) {
	var sqlErr *sqlitedriver.Error
	if !errors.As(err, &sqlErr) || sqlErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	const marker = "UNIQUE constraint failed: "
	msg := sqlErr.Error()
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", true
	}
	col := msg[i+len(marker):]
	if j := strings.IndexAny(col, " ,"); j >= 0 {
		col = col[:j]
	}
	if k := strings.LastIndex(col, "."); k >= 0 {
		col = col[k+1:]
	}
	return col, true
}
