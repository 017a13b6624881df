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
	"github.com/sakif/tasklist/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

const (
	taskColumns = `id, creator_id, text, completed, completed_at, created_at, updated_at`

	queryInsertTask = `INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	queryTaskByID = `SELECT ` + taskColumns + `
		FROM tasks WHERE id = $1 AND creator_id = $2`

	queryListTasks = `SELECT ` + taskColumns + `
		FROM tasks WHERE creator_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`

	// Only the fields whose parameter is non-NULL change. completed_at
	// follows the completion rule: completing keeps an existing stamp,
	// un-completing clears it, leaving completed out leaves it alone.
	queryUpdateTask = `UPDATE tasks
		SET text = COALESCE($3::text, text),
		    completed = COALESCE($4::boolean, completed),
		    completed_at = CASE
		        WHEN $4::boolean IS NULL THEN completed_at
		        WHEN $4::boolean THEN COALESCE(completed_at, $5::timestamptz)
		        ELSE NULL
		    END,
		    updated_at = $5::timestamptz
		WHERE id = $1 AND creator_id = $2
		RETURNING ` + taskColumns

	queryDeleteTask = `DELETE FROM tasks
		WHERE id = $1 AND creator_id = $2
		RETURNING ` + taskColumns
)

func (db *DB) Create(ctx context.Context, task *model.Task) error {
	if task.CreatorID == "" {
		return apperror.ValidationFailed("creatorId", "task creator is required")
	}

	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx, queryInsertTask,
		task.ID, task.CreatorID, task.Text, task.Completed,
		nullTime(task.CompletedAt), task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating task: %w", err)
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, creatorID, id string) (*model.Task, error) {
	task, err := scanTask(db.conn.QueryRowContext(ctx, queryTaskByID, id, creatorID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("postgres: getting task %s: %w", id, err)
	}
	return task, nil
}

func (db *DB) List(ctx context.Context, creatorID string, opts repository.ListOptions) ([]model.Task, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx, queryListTasks, creatorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning task row: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating tasks: %w", err)
	}
	return tasks, nil
}

// Update applies upd in a single statement, so Postgres' row lock covers the
// whole change and concurrent PATCHes to different fields both survive.
func (db *DB) Update(ctx context.Context, creatorID, id string, upd model.TaskUpdate, now time.Time) (*model.Task, error) {
	var (
		text      sql.NullString
		completed sql.NullBool
	)
	if upd.Text != nil {
		text = sql.NullString{String: *upd.Text, Valid: true}
	}
	if upd.Completed != nil {
		completed = sql.NullBool{Bool: *upd.Completed, Valid: true}
	}

	task, err := scanTask(db.conn.QueryRowContext(ctx, queryUpdateTask,
		id, creatorID, text, completed, now.UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("postgres: updating task %s: %w", id, err)
	}
	return task, nil
}

// Delete removes the task and returns the deleted row.
func (db *DB) Delete(ctx context.Context, creatorID, id string) (*model.Task, error) {
	task, err := scanTask(db.conn.QueryRowContext(ctx, queryDeleteTask, id, creatorID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("postgres: deleting task %s: %w", id, err)
	}
	return task, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*model.Task, error) {
	var (
		t           model.Task
		completedAt sql.NullTime
	)
	if err := s.Scan(
		&t.ID, &t.CreatorID, &t.Text, &t.Completed,
		&completedAt, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
