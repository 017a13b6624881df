// Package memory provides an in-memory repository.Store for local runs and
// tests. Everything is lost when the process exits.
//
// A single RWMutex guards all maps. Every method copies values in and out,
// so callers can never mutate stored state through a returned pointer.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
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

// Store is an in-memory implementation of repository.Store.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*model.User // by ID
	byEmail map[string]string      // email -> ID
	tasks   map[string]*model.Task // by ID
}

var _ repository.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:   make(map[string]*model.User),
		byEmail: make(map[string]string),
		tasks:   make(map[string]*model.Task),
	}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

// =========================================================================
// USERS
// =========================================================================

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return apperror.DuplicateEmail(user.Email)
	}

	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Tokens = nil

	s.users[user.ID] = copyUser(user)
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	return copyUser(s.users[id]), nil
}

func (s *Store) GetUserByToken(ctx context.Context, userID string, tok model.Token) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok || !u.HasToken(tok.Kind, tok.Token) {
		return nil, apperror.NotFound("session for user", userID)
	}
	return copyUser(u), nil
}

func (s *Store) PushToken(ctx context.Context, userID string, tok model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.Tokens = append(u.Tokens, tok)
	return nil
}

func (s *Store) PullToken(ctx context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	u.Tokens = slices.DeleteFunc(u.Tokens, func(t model.Token) bool {
		return t.Token == token
	})
	return nil
}

// =========================================================================
// TASKS
// =========================================================================

func (s *Store) Create(ctx context.Context, task *model.Task) error {
	if task.CreatorID == "" {
		return apperror.ValidationFailed("creatorId", "task creator is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[task.CreatorID]; !ok {
		return apperror.NotFound("user", task.CreatorID)
	}

	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now

	s.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *Store) GetByID(ctx context.Context, creatorID, id string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok || t.CreatorID != creatorID {
		return nil, apperror.NotFound("task", id)
	}
	return copyTask(t), nil
}

func (s *Store) List(ctx context.Context, creatorID string, opts repository.ListOptions) ([]model.Task, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(opts.Offset, 0)

	s.mu.RLock()
	var own []model.Task
	for _, t := range s.tasks {
		if t.CreatorID == creatorID {
			own = append(own, *copyTask(t))
		}
	}
	s.mu.RUnlock()

	// xids sort by creation time, which matches the SQL backends'
	// ORDER BY created_at, id.
	sort.Slice(own, func(i, j int) bool { return own[i].ID < own[j].ID })

	if offset >= len(own) {
		return []model.Task{}, nil
	}
	end := min(offset+limit, len(own))
	return own[offset:end], nil
}

func (s *Store) Update(ctx context.Context, creatorID, id string, upd model.TaskUpdate, now time.Time) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.CreatorID != creatorID {
		return nil, apperror.NotFound("task", id)
	}

	updated := copyTask(t)
	upd.Apply(updated, now.UTC())
	s.tasks[id] = updated
	return copyTask(updated), nil
}

func (s *Store) Delete(ctx context.Context, creatorID, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.CreatorID != creatorID {
		return nil, apperror.NotFound("task", id)
	}
	delete(s.tasks, id)
	return copyTask(t), nil
}

func copyUser(u *model.User) *model.User {
	c := *u
	c.Tokens = slices.Clone(u.Tokens)
	return &c
}

func copyTask(t *model.Task) *model.Task {
	c := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
