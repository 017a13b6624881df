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
	"github.com/sakif/tasklist/internal/repository"
)

// Page size bounds applied when the caller passes nothing sensible.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

const taskColumns = `id, creator_id, text, completed, completed_at, created_at, updated_at`

// Create inserts a new task. The ID is an xid: 20 URL-safe characters,
// sortable by creation time.
func (db *DB) Create(ctx context.Context, task *model.Task) error {
	if task.CreatorID == "" {
		return apperror.ValidationFailed("creatorId", "task creator is required")
	}

	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.CreatorID,
		task.Text,
		task.Completed,
		nullTime(task.CompletedAt),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating task: %w", err)
	}
	return nil
}

// GetByID retrieves a task, but only if creatorID owns it.
func (db *DB) GetByID(ctx context.Context, creatorID, id string) (*model.Task, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE id = ? AND creator_id = ?`,
		id, creatorID,
	)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: getting task %s: %w", id, err)
	}
	return task, nil
}

// List returns the creator's tasks, oldest first.
func (db *DB) List(ctx context.Context, creatorID string, opts repository.ListOptions) ([]model.Task, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE creator_id = ?
		 ORDER BY created_at, id
		 LIMIT ? OFFSET ?`,
		creatorID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning task row: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tasks: %w", err)
	}
	return tasks, nil
}

// Update applies upd to the task inside one write transaction, so a
// concurrent PATCH touching other fields is never overwritten with stale
// values. The WHERE clause matches on creator as well as id, so "missing"
// and "not yours" both come back as not found.
func (db *DB) Update(ctx context.Context, creatorID, id string, upd model.TaskUpdate, now time.Time) (*model.Task, error) {
	var task *model.Task
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		task, err = selectTask(ctx, tx, creatorID, id)
		if err != nil {
			return err
		}

		upd.Apply(task, now.UTC())

		_, err = tx.ExecContext(ctx,
			`UPDATE tasks
			 SET text = ?, completed = ?, completed_at = ?, updated_at = ?
			 WHERE id = ? AND creator_id = ?`,
			task.Text,
			task.Completed,
			nullTime(task.CompletedAt),
			task.UpdatedAt,
			id,
			creatorID,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: updating task %s: %w", id, err)
	}
	return task, nil
}

// Delete removes the task and returns it as it was. The read and the delete
// share one write transaction so the returned row is exactly what was
// removed. DELETE ... RETURNING would do it in one statement, but SQLite
// reports no declared column type for RETURNING output, and the driver then
// hands back timestamps as strings.
func (db *DB) Delete(ctx context.Context, creatorID, id string) (*model.Task, error) {
	var task *model.Task
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		task, err = selectTask(ctx, tx, creatorID, id)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM tasks WHERE id = ? AND creator_id = ?`,
			id, creatorID,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: deleting task %s: %w", id, err)
	}
	return task, nil
}

// selectTask reads one owned task within tx.
func selectTask(ctx context.Context, tx *sql.Tx, creatorID, id string) (*model.Task, error) {
	task, err := scanTask(tx.QueryRowContext(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE id = ? AND creator_id = ?`,
		id, creatorID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("task", id)
	}
	return task, err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
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
