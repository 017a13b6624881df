package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/observability"
	"github.com/sakif/tasklist/internal/repository"
)

const (
	MaxTaskTextLength = 1000
	DefaultListLimit  = 20
	MaxListLimit      = 100
)

// TaskService enforces task rules. Every method takes the creator ID of the
// authenticated caller, and every read or write is scoped to it.
type TaskService struct {
	repo   repository.TaskRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewTaskService(repo repository.TaskRepository, logger *slog.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new task owned by creatorID.
func (s *TaskService) Create(ctx context.Context, creatorID, text string) (_ *model.Task, err error) {
	defer s.count("create", &err)

	if creatorID == "" {
		return nil, apperror.ValidationFailed("creatorId", "task creator is required")
	}
	text, err = validateText(text)
	if err != nil {
		return nil, err
	}

	task := &model.Task{CreatorID: creatorID, Text: text}
	if err := s.repo.Create(ctx, task); err != nil {
		s.logger.Error("failed to create task",
			slog.String("creatorID", creatorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.logger.Info("task created",
		slog.String("id", task.ID),
		slog.String("creatorID", creatorID),
	)
	return task, nil
}

// List returns a page of creatorID's tasks. Limit is clamped to
// [1, MaxListLimit] and defaults to DefaultListLimit.
func (s *TaskService) List(ctx context.Context, creatorID string, limit, offset int) (_ []model.Task, err error) {
	defer s.count("list", &err)

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	tasks, err := s.repo.List(ctx, creatorID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list tasks", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// GetByID returns the task if creatorID owns it. A malformed ID is reported
// as not found, the same as a well-formed ID that matches nothing.
func (s *TaskService) GetByID(ctx context.Context, creatorID, id string) (_ *model.Task, err error) {
	defer s.count("get", &err)

	if !validID(id) {
		return nil, apperror.NotFound("task", id)
	}
	return s.repo.GetByID(ctx, creatorID, id)
}

// Update applies the whitelisted fields in upd.
//
// Completion rule: setting completed=true stamps completedAt with the
// current time (kept as-is if the task was already complete); setting
// completed=false clears completedAt. Leaving completed out leaves both
// untouched. The store applies the change in one atomic step, so only the
// fields present in upd are written.
func (s *TaskService) Update(ctx context.Context, creatorID, id string, upd model.TaskUpdate) (_ *model.Task, err error) {
	defer s.count("update", &err)

	if !validID(id) {
		return nil, apperror.NotFound("task", id)
	}

	if upd.Text != nil {
		text, err := validateText(*upd.Text)
		if err != nil {
			return nil, err
		}
		upd.Text = &text
	}

	task, err := s.repo.Update(ctx, creatorID, id, upd, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("task updated", slog.String("id", task.ID))
	return task, nil
}

// Delete removes the task and returns it.
func (s *TaskService) Delete(ctx context.Context, creatorID, id string) (_ *model.Task, err error) {
	defer s.count("delete", &err)

	if !validID(id) {
		return nil, apperror.NotFound("task", id)
	}

	task, err := s.repo.Delete(ctx, creatorID, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("task deleted", slog.String("id", id))
	return task, nil
}

func (s *TaskService) count(op string, err *error) {
	observability.TaskOperationsTotal.WithLabelValues(op, observability.ResultOf(*err, isClientOutcome)).Inc()
}

func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperror.ValidationFailed("text", "task text is required")
	}
	if utf8.RuneCountInString(text) > MaxTaskTextLength {
		return "", apperror.ValidationFailed("text",
			fmt.Sprintf("task text must be %d characters or less", MaxTaskTextLength))
	}
	return text, nil
}

// validID reports whether id has the shape of an xid.
func validID(id string) bool {
	_, err := xid.FromString(id)
	return err == nil
}
