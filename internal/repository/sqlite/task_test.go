package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/repository"
)

func createTestTask(t *testing.T, db *DB, creatorID, text string) *model.Task {
	t.Helper()
	task := &model.Task{CreatorID: creatorID, Text: text}
	if err := db.Create(context.Background(), task); err != nil {
		t.Fatalf("failed to create test task: %v", err)
	}
	return task
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateTask(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "a@example.com")

	task := createTestTask(t, db, u.ID, "buy milk")

	if task.ID == "" {
		t.Error("Create() did not set task.ID")
	}

	got, err := db.GetByID(context.Background(), u.ID, task.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Text != "buy milk" || got.Completed || got.CompletedAt != nil {
		t.Errorf("GetByID() = %+v, want fresh incomplete task", got)
	}
	if got.CreatorID != u.ID {
		t.Errorf("CreatorID = %q, want %q", got.CreatorID, u.ID)
	}
}

func TestCreateTask_RequiresCreator(t *testing.T) {
	db := newTestDB(t)

	err := db.Create(context.Background(), &model.Task{Text: "orphan"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Create() error = %v, want ErrValidation", err)
	}
}

func TestCreateTask_UnknownCreatorRejectedByForeignKey(t *testing.T) {
	db := newTestDB(t)

	if err := db.Create(context.Background(), &model.Task{CreatorID: "ghost", Text: "x"}); err == nil {
		t.Error("Create() with unknown creator should fail (foreign key)")
	}
}

// =========================================================================
// OWNERSHIP TESTS
// =========================================================================

func TestForeignTaskLooksMissing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	task := createTestTask(t, db, alice.ID, "alice's task")

	if _, err := db.GetByID(ctx, bob.ID, task.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID(bob) error = %v, want ErrNotFound", err)
	}

	hijacked := "hijacked"
	if _, err := db.Update(ctx, bob.ID, task.ID, model.TaskUpdate{Text: &hijacked}, time.Now()); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update(bob) error = %v, want ErrNotFound", err)
	}

	if _, err := db.Delete(ctx, bob.ID, task.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete(bob) error = %v, want ErrNotFound", err)
	}

	got, err := db.GetByID(ctx, alice.ID, task.ID)
	if err != nil {
		t.Fatalf("alice lost her task: %v", err)
	}
	if got.Text != "alice's task" {
		t.Errorf("Text = %q, foreign update leaked through", got.Text)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListTasks_OnlyOwn(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	createTestTask(t, db, alice.ID, "a1")
	createTestTask(t, db, alice.ID, "a2")
	createTestTask(t, db, bob.ID, "b1")

	tasks, err := db.List(ctx, alice.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}
	for _, task := range tasks {
		if task.CreatorID != alice.ID {
			t.Errorf("List() returned task of %s", task.CreatorID)
		}
	}
}

func TestListTasks_Pagination(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := createTestUser(t, db, "a@example.com")
	for _, text := range []string{"1", "2", "3", "4", "5"} {
		createTestTask(t, db, u.ID, text)
	}

	page, err := db.List(ctx, u.ID, repository.ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page) != 2 {
		t.Errorf("len(page) = %d, want 2", len(page))
	}
}

func TestListTasks_Empty(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "a@example.com")

	tasks, err := db.List(context.Background(), u.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", tasks)
	}
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestUpdateTask_CompletedAtRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := createTestUser(t, db, "a@example.com")
	task := createTestTask(t, db, u.ID, "x")

	yes, no := true, false
	now := time.Now().UTC().Truncate(time.Second)
	updated, err := db.Update(ctx, u.ID, task.ID, model.TaskUpdate{Completed: &yes}, now)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, now)
	}

	got, _ := db.GetByID(ctx, u.ID, task.ID)
	if !got.Completed {
		t.Error("Completed = false after update")
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, now)
	}
	if got.Text != "x" {
		t.Errorf("Text = %q, completion-only update touched it", got.Text)
	}

	if _, err := db.Update(ctx, u.ID, task.ID, model.TaskUpdate{Completed: &no}, now); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ = db.GetByID(ctx, u.ID, task.ID)
	if got.Completed || got.CompletedAt != nil {
		t.Errorf("got %+v, want completion cleared", got)
	}
}

func TestUpdateTask_Missing(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "a@example.com")

	_, err := db.Update(context.Background(), u.ID, "cv1k2m3n4o5p6q7r8s9t", model.TaskUpdate{}, time.Now())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteTask_ReturnsDeleted(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := createTestUser(t, db, "a@example.com")
	task := createTestTask(t, db, u.ID, "bye")

	deleted, err := db.Delete(ctx, u.ID, task.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted.ID != task.ID || deleted.Text != "bye" {
		t.Errorf("Delete() = %+v, want the removed task", deleted)
	}

	if _, err := db.GetByID(ctx, u.ID, task.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := db.Delete(ctx, u.ID, task.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// CONCURRENCY TESTS (file-backed, so the pool really has many connections)
// =========================================================================

func TestDeleteTask_ConcurrentOnFileDB(t *testing.T) {
	ctx := context.Background()
	db := newFileTestDB(t)
	u := createTestUser(t, db, "a@example.com")

	const n = 100
	ids := make([]string, n)
	for i := range ids {
		ids[i] = createTestTask(t, db, u.ID, fmt.Sprintf("task %d", i)).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			deleted, err := db.Delete(ctx, u.ID, id)
			if err == nil && deleted.ID != id {
				err = fmt.Errorf("Delete(%s) returned task %s", id, deleted.ID)
			}
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Delete() error = %v", err)
		}
	}

	left, err := db.List(ctx, u.ID, repository.ListOptions{Limit: n})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(left) != 0 {
		t.Errorf("len(List()) = %d after deleting everything, want 0", len(left))
	}
}

func TestCreateTask_ConcurrentOnFileDB(t *testing.T) {
	ctx := context.Background()
	db := newFileTestDB(t)
	u := createTestUser(t, db, "a@example.com")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- db.Create(ctx, &model.Task{CreatorID: u.ID, Text: fmt.Sprintf("task %d", i)})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Create() error = %v", err)
		}
	}

	tasks, err := db.List(ctx, u.ID, repository.ListOptions{Limit: n})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tasks) != n {
		t.Errorf("len(List()) = %d, want %d", len(tasks), n)
	}
}

// A text edit and a completion toggle racing on the same task must both
// stick: neither writer may put back the other's stale field.
func TestUpdateTask_ConcurrentDisjointFields(t *testing.T) {
	bothDBs(t, func(t *testing.T, db *DB) {
		ctx := context.Background()
		u := createTestUser(t, db, "a@example.com")

		const n = 20
		ids := make([]string, n)
		for i := range ids {
			ids[i] = createTestTask(t, db, u.ID, "draft").ID
		}

		yes := true
		text := "final"
		now := time.Now().UTC().Truncate(time.Second)

		var wg sync.WaitGroup
		errs := make(chan error, 2*n)
		for _, id := range ids {
			wg.Add(2)
			go func(id string) {
				defer wg.Done()
				_, err := db.Update(ctx, u.ID, id, model.TaskUpdate{Text: &text}, now)
				errs <- err
			}(id)
			go func(id string) {
				defer wg.Done()
				_, err := db.Update(ctx, u.ID, id, model.TaskUpdate{Completed: &yes}, now)
				errs <- err
			}(id)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Fatalf("concurrent Update() error = %v", err)
			}
		}

		for _, id := range ids {
			got, err := db.GetByID(ctx, u.ID, id)
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if got.Text != text || !got.Completed || got.CompletedAt == nil {
				t.Errorf("task %s = {text:%q completed:%v completedAt:%v}, want both updates applied",
					id, got.Text, got.Completed, got.CompletedAt)
			}
		}
	})
}
