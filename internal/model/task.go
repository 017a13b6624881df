package model

import "time"

// Task is a single to-do item owned by exactly one user.
//
// CreatorID is taken from the authenticated session when the task is
// created and never changes afterwards. Clients cannot set it.
type Task struct {
	ID          string     `json:"id"`
	CreatorID   string     `json:"creatorId"`
	Text        string     `json:"text"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskUpdate lists the only fields a client may change. A nil pointer means
// "leave as is". Anything else in a PATCH body is ignored.
type TaskUpdate struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}

// Apply sets the fields present in u on t and bumps UpdatedAt to now.
//
// Completing a task stamps CompletedAt with now unless it already carries a
// stamp. Un-completing clears it. Stores call this while holding whatever
// lock or transaction makes the read and the write one step.
func (u TaskUpdate) Apply(t *Task, now time.Time) {
	if u.Text != nil {
		t.Text = *u.Text
	}
	if u.Completed != nil {
		if *u.Completed {
			if !t.Completed || t.CompletedAt == nil {
				stamp := now
				t.CompletedAt = &stamp
			}
			t.Completed = true
		} else {
			t.Completed = false
			t.CompletedAt = nil
		}
	}
	t.UpdatedAt = now
}
