// Package repository declares the storage boundary. Services depend on
// these interfaces; sqlite, postgres and memory provide implementations.
//
// OWNERSHIP IS PART OF THE QUERY:
// Every TaskRepository method that touches an existing task takes the
// creator's ID and puts it in the same filter as the task ID. A task owned
// by someone else is simply not matched, so callers get apperror.ErrNotFound
// and can't tell "exists but foreign" from "does not exist".
package repository

import (
	"context"
	"time"

	"github.com/sakif/tasklist/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository stores accounts and their session token lists.
//
// PushToken and PullToken each change a single user's list in one atomic
// store operation. Concurrent logins for the same user must all land, and a
// login racing a logout must not lose either change.
type UserRepository interface {
	// CreateUser assigns ID and timestamps. Returns apperror.ErrConflict
	// (via apperror.DuplicateEmail) if the email is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// GetUserByToken returns the user only if userID exists AND tok is in
	// that user's list with the same kind. Otherwise apperror.ErrNotFound.
	GetUserByToken(ctx context.Context, userID string, tok model.Token) (*model.User, error)

	// PushToken appends tok to the user's list. apperror.ErrNotFound if the
	// user does not exist.
	PushToken(ctx context.Context, userID string, tok model.Token) error

	// PullToken removes every entry whose token string equals token.
	// Removing a token that is not there is not an error.
	PullToken(ctx context.Context, userID, token string) error
}

// TaskRepository stores tasks, always scoped to a creator.
type TaskRepository interface {
	// Create assigns ID and timestamps. task.CreatorID must be set.
	Create(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, creatorID, id string) (*model.Task, error)
	List(ctx context.Context, creatorID string, opts ListOptions) ([]model.Task, error)
	// Update applies only the fields present in upd (see
	// model.TaskUpdate.Apply) to the task creatorID owns, in one atomic
	// step, and returns the result. Fields upd leaves nil keep whatever a
	// concurrent writer stored.
	Update(ctx context.Context, creatorID, id string, upd model.TaskUpdate, now time.Time) (*model.Task, error)
	// Delete removes the task and returns it as it was.
	Delete(ctx context.Context, creatorID, id string) (*model.Task, error)
}

// Store is everything a backend provides. The server owns one and closes it
// on shutdown.
type Store interface {
	UserRepository
	TaskRepository
	Ping(ctx context.Context) error
	Close() error
}
