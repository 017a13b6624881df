// Package sqlite implements repository.Store on an embedded SQLite database.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so no C compiler is needed and
// cross-compiling just works. It registers itself with database/sql under
// the driver name "sqlite".
//
// SCHEMA:
//
//	users        one row per account, email UNIQUE
//	user_tokens  one row per live session, FK to users (ON DELETE CASCADE)
//	tasks        one row per task, FK creator_id to users
//
// Keeping tokens in their own table turns "append to the user's list" and
// "remove from the list" into single INSERT/DELETE statements, which SQLite
// applies atomically. No read-modify-write of a serialized list, so
// concurrent logins for one user can't overwrite each other.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/tasklist/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/tasklist.db"  → file-based, persistent
//   - ":memory:"          → in-memory, gone on Close (tests)
//
// IN-MEMORY DATABASES AND THE POOL:
// Every new connection to ":memory:" gets its own, empty database. sql.DB is
// a pool, so we pin it to a single connection in that case. Otherwise the
// second concurrent query would see no tables at all.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", withPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	inMemory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
	if inMemory {
		conn.SetMaxOpenConns(1)
		conn.SetConnMaxLifetime(0)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress. It has no
	// meaning for in-memory databases.
	if !inMemory {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// withPragmas appends per-connection pragmas to the DSN. foreign_keys is a
// per-connection setting in SQLite, so running "PRAGMA foreign_keys=ON" once
// would only cover whichever pooled connection happened to execute it.
//
// _txlock=immediate makes BeginTx issue BEGIN IMMEDIATE. A deferred
// transaction that reads and then writes has to upgrade its read lock, and
// in WAL mode that upgrade fails straight away with SQLITE_BUSY when another
// connection got there first; busy_timeout never gets a say. Taking the
// write lock at BEGIN means the wait happens up front, where busy_timeout
// does apply.
func withPragmas(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

// withTx runs fn inside a write transaction and commits if fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent, so running it
// on an existing database is a no-op.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// AUTOINCREMENT keeps ids monotonic, so ORDER BY id returns a user's
	// tokens in the order they were issued.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_tokens (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			kind       TEXT NOT NULL,
			token      TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_user_tokens_user_id ON user_tokens(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating user_tokens table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id           TEXT PRIMARY KEY,
			creator_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			text         TEXT NOT NULL,
			completed    INTEGER NOT NULL DEFAULT 0,
			completed_at DATETIME,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_creator_id ON tasks(creator_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating tasks table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is SQLite rejecting a UNIQUE or
// PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	var sqlErr *sqlitedrv.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	code := sqlErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
