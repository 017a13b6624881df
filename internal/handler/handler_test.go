package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/handler"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/repository/memory"
	"github.com/sakif/tasklist/internal/service"
)

// testAPI mounts the real handlers and services over an in-memory store,
// the same way the server does.
type testAPI struct {
	router http.Handler
	tokens *service.TokenManager
}

func newTestAPI(t *testing.T, tokenWrap func(handler.Tokens) handler.Tokens) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()

	passwords, err := auth.NewPasswordServiceWithCost(bcrypt.MinCost)
	require.NoError(t, err)
	signer, err := auth.NewTokenService("handler-test-secret-value", time.Hour)
	require.NoError(t, err)

	credentials := service.NewCredentialStore(store, passwords, logger)
	tokens := service.NewTokenManager(store, signer, logger)

	var handlerTokens handler.Tokens = tokens
	if tokenWrap != nil {
		handlerTokens = tokenWrap(tokens)
	}

	users := handler.NewUserHandler(credentials, handlerTokens, logger)
	tasks := handler.NewTaskHandler(service.NewTaskService(store, logger), logger)

	r := chi.NewRouter()
	r.Post("/users", users.HandleRegister)
	r.Post("/users/login", users.HandleLogin)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, logger))
		r.Get("/users/me", users.HandleMe)
		r.Delete("/users/me/token", users.HandleLogout)
		r.Get("/tasks", tasks.HandleList)
		r.Post("/tasks", tasks.HandleCreate)
		r.Get("/tasks/{id}", tasks.HandleGetByID)
		r.Patch("/tasks/{id}", tasks.HandleUpdate)
		r.Delete("/tasks/{id}", tasks.HandleDelete)
	})

	return &testAPI{router: r, tokens: tokens}
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.HeaderName, token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

// register creates an account and returns its token.
func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/users", "", `{"email":"`+email+`","password":"password123"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	token := rr.Header().Get(auth.HeaderName)
	require.NotEmpty(t, token)
	return token
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

type userBody struct {
	User map[string]any `json:"user"`
}

type taskBody struct {
	Task model.Task `json:"task"`
}

type taskListBody struct {
	Tasks []model.Task `json:"tasks"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// failingTokens lets registration succeed but fails token issuance.
type failingTokens struct {
	handler.Tokens
	err error
}

func (f failingTokens) GenerateAuthToken(ctx context.Context, user *model.User) (string, error) {
	return "", f.err
}

var errBoom = errors.New("boom: connection refused at 10.0.0.5:5432")
