package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/model"
)

// Tasks is the subset of service.TaskService the handler needs.
type Tasks interface {
	Create(ctx context.Context, creatorID, text string) (*model.Task, error)
	List(ctx context.Context, creatorID string, limit, offset int) ([]model.Task, error)
	GetByID(ctx context.Context, creatorID, id string) (*model.Task, error)
	Update(ctx context.Context, creatorID, id string, upd model.TaskUpdate) (*model.Task, error)
	Delete(ctx context.Context, creatorID, id string) (*model.Task, error)
}

// TaskHandler serves /tasks. Every route sits behind auth.RequireAuth, and
// the creator ID always comes from the session, never from the request.
type TaskHandler struct {
	tasks  Tasks
	logger *slog.Logger
}

func NewTaskHandler(tasks Tasks, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

type createTaskRequest struct {
	Text string `json:"text"`
}

type taskResponse struct {
	Task *model.Task `json:"task"`
}

type taskListResponse struct {
	Tasks []model.Task `json:"tasks"`
}

// HandleCreate stores a task for the caller.
//
// HTTP: POST /tasks
// Body: {"text": "..."}. A creatorId in the body is ignored.
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), userID, req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, taskResponse{Task: task})
}

// HandleList returns the caller's tasks.
//
// HTTP: GET /tasks?limit=20&offset=0
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	tasks, err := h.tasks.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if tasks == nil {
		// Encode as [] rather than null.
		tasks = []model.Task{}
	}

	writeJSON(w, http.StatusOK, taskListResponse{Tasks: tasks})
}

// HandleGetByID returns one of the caller's tasks. Someone else's task and a
// task that doesn't exist both give 404.
//
// HTTP: GET /tasks/{id}
func (h *TaskHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, taskResponse{Task: task})
}

// HandleUpdate changes text and/or completion.
//
// HTTP: PATCH /tasks/{id}
// Body: {"text"?: "...", "completed"?: bool}. Other fields are ignored.
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var upd model.TaskUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, h.logger, err)
		return
	}

	task, err := h.tasks.Update(r.Context(), userID, chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, taskResponse{Task: task})
}

// HandleDelete removes one of the caller's tasks and returns it.
//
// HTTP: DELETE /tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, taskResponse{Task: task})
}

// caller returns the authenticated user's ID, or writes a 401 and false.
func (h *TaskHandler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.InvalidToken(nil))
		return "", false
	}
	return session.User.ID, true
}

// queryInt reads an optional non-negative integer query parameter. Absent
// means 0, which the service treats as "use the default".
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
