package postgres

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

const (
	queryInsertUser = `INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	queryUserByID = `SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE id = $1`

	queryUserByEmail = `SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1`

	queryUserByToken = `SELECT u.id, u.email, u.password_hash, u.created_at, u.updated_at
		FROM users u
		JOIN user_tokens t ON t.user_id = u.id
		WHERE u.id = $1 AND t.kind = $2 AND t.token = $3`

	queryTokensByUser = `SELECT kind, token FROM user_tokens WHERE user_id = $1 ORDER BY id`

	// Parameters in a SELECT list have no target column to infer a type
	// from, hence the casts.
	queryPushToken = `INSERT INTO user_tokens (user_id, kind, token)
		SELECT $1::text, $2::text, $3::text
		WHERE EXISTS (SELECT 1 FROM users WHERE id = $1::text)`

	queryPullToken = `DELETE FROM user_tokens WHERE user_id = $1 AND token = $2`
)

// CreateUser inserts a new account; the UNIQUE index on email reports
// duplicates.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Tokens = nil

	_, err := db.conn.ExecContext(ctx, queryInsertUser,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateEmail(user.Email)
		}
		return fmt.Errorf("postgres: inserting user: %w", err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.userWithTokens(ctx, "user", id, queryUserByID, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.userWithTokens(ctx, "user", email, queryUserByEmail, email)
}

// GetUserByToken matches only while the token row still exists.
func (db *DB) GetUserByToken(ctx context.Context, userID string, tok model.Token) (*model.User, error) {
	return db.userWithTokens(ctx, "session for user", userID, queryUserByToken, userID, tok.Kind, tok.Token)
}

// PushToken appends to the user's list in one statement.
func (db *DB) PushToken(ctx context.Context, userID string, tok model.Token) error {
	result, err := db.conn.ExecContext(ctx, queryPushToken, userID, tok.Kind, tok.Token)
	if err != nil {
		return fmt.Errorf("postgres: pushing token for user %s: %w", userID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// PullToken removes the token if present.
func (db *DB) PullToken(ctx context.Context, userID, token string) error {
	if _, err := db.conn.ExecContext(ctx, queryPullToken, userID, token); err != nil {
		return fmt.Errorf("postgres: pulling token for user %s: %w", userID, err)
	}
	return nil
}

func (db *DB) userWithTokens(ctx context.Context, resource, key, query string, args ...any) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx, query, args...).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(resource, key)
		}
		return nil, fmt.Errorf("postgres: getting %s %s: %w", resource, key, err)
	}

	rows, err := db.conn.QueryContext(ctx, queryTokensByUser, u.ID)
	if err != nil {
		return nil, fmt.Errorf("postgres: loading tokens for user %s: %w", u.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Token
		if err := rows.Scan(&t.Kind, &t.Token); err != nil {
			return nil, fmt.Errorf("postgres: scanning token row: %w", err)
		}
		u.Tokens = append(u.Tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating tokens: %w", err)
	}
	return &u, nil
}
