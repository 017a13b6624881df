package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/model"
)

// CreateUser inserts a new account. The UNIQUE constraint on email is the
// source of truth for duplicates: no SELECT-then-INSERT window for two
// concurrent registrations to slip through.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Tokens = nil

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateEmail(user.Email)
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user and their token list.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	)
	return db.scanUserWithTokens(ctx, row, "user", id)
}

// GetUserByEmail retrieves a user by their (already normalised) email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, updated_at
		 FROM users WHERE email = ?`,
		email,
	)
	return db.scanUserWithTokens(ctx, row, "user", email)
}

// GetUserByToken is the revocation check: the JOIN only matches when the
// token row still exists for this user with this kind.
func (db *DB) GetUserByToken(ctx context.Context, userID string, tok model.Token) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.password_hash, u.created_at, u.updated_at
		 FROM users u
		 JOIN user_tokens t ON t.user_id = u.id
		 WHERE u.id = ? AND t.kind = ? AND t.token = ?`,
		userID, tok.Kind, tok.Token,
	)
	return db.scanUserWithTokens(ctx, row, "session for user", userID)
}

// PushToken appends a token to the user's list.
//
// INSERT ... SELECT ... WHERE EXISTS makes "user exists" and "append" a
// single statement, so zero rows affected means the user is gone.
func (db *DB) PushToken(ctx context.Context, userID string, tok model.Token) error {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_tokens (user_id, kind, token, created_at)
		 SELECT ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM users WHERE id = ?)`,
		userID, tok.Kind, tok.Token, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: pushing token for user %s: %w", userID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// PullToken removes a token from the user's list. Zero rows affected is fine.
func (db *DB) PullToken(ctx context.Context, userID, token string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE user_id = ? AND token = ?`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("sqlite: pulling token for user %s: %w", userID, err)
	}
	return nil
}

// scanUserWithTokens scans one user row, then loads the token list.
//
// The row is fully consumed by Scan before the second query runs. With an
// in-memory database the pool has a single connection, and holding a result
// set open while issuing another query would wait forever.
func (db *DB) scanUserWithTokens(ctx context.Context, row *sql.Row, resource, key string) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(resource, key)
		}
		return nil, fmt.Errorf("sqlite: getting %s %s: %w", resource, key, err)
	}

	tokens, err := db.loadTokens(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Tokens = tokens
	return &u, nil
}

func (db *DB) loadTokens(ctx context.Context, userID string) ([]model.Token, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT kind, token FROM user_tokens WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading tokens for user %s: %w", userID, err)
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		var t model.Token
		if err := rows.Scan(&t.Kind, &t.Token); err != nil {
			return nil, fmt.Errorf("sqlite: scanning token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tokens: %w", err)
	}
	return tokens, nil
}
