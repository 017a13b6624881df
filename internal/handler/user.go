package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/model"
)

// Credentials is the subset of service.CredentialStore the handler needs.
type Credentials interface {
	CreateUser(ctx context.Context, email, password string) (*model.User, error)
	FindByCredentials(ctx context.Context, email, password string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Tokens is the subset of service.TokenManager the handler needs.
type Tokens interface {
	GenerateAuthToken(ctx context.Context, user *model.User) (string, error)
	RemoveToken(ctx context.Context, user *model.User, token string) error
}

// UserHandler serves registration, login, logout and the current profile.
//
// The session token travels in the X-Auth header both ways: register and
// login set it on the response, protected routes read it from the request.
type UserHandler struct {
	credentials Credentials
	tokens      Tokens
	logger      *slog.Logger
}

func NewUserHandler(credentials Credentials, tokens Tokens, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		credentials: credentials,
		tokens:      tokens,
		logger:      logger,
	}
}

// credentialsRequest is the body of register and login. Other fields are
// ignored.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User *model.User `json:"user"`
}

// HandleRegister creates an account and logs it in.
//
// HTTP: POST /users
// Body: {"email": "...", "password": "..."}
// 201 with {"user": {...}} and X-Auth, 400 on bad input, 409 if taken.
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.credentials.CreateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// The account exists even if this fails; the client can log in.
	token, err := h.tokens.GenerateAuthToken(r.Context(), user)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set(auth.HeaderName, token)
	writeJSON(w, http.StatusCreated, userResponse{User: user})
}

// HandleLogin exchanges an email and password for a new session token.
//
// HTTP: POST /users/login
// 200 with {"user": {...}} and X-Auth. Every credential failure is the same
// 401, whether the email is unknown or the password is wrong.
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, apperror.Unauthenticated())
		return
	}

	user, err := h.credentials.FindByCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	token, err := h.tokens.GenerateAuthToken(r.Context(), user)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("user logged in", slog.String("userID", user.ID))
	w.Header().Set(auth.HeaderName, token)
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleMe returns the authenticated user, read fresh from the store.
//
// HTTP: GET /users/me (behind auth.RequireAuth)
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.InvalidToken(nil))
		return
	}

	user, err := h.credentials.GetUserByID(r.Context(), session.User.ID)
	if err != nil {
		// Deleted between verification and now: treat like a revoked token.
		if errors.Is(err, apperror.ErrNotFound) {
			err = apperror.InvalidToken(err)
		}
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleLogout revokes the token this request was made with. The user's
// other sessions stay valid.
//
// HTTP: DELETE /users/me/token (behind auth.RequireAuth)
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.InvalidToken(nil))
		return
	}

	if err := h.tokens.RemoveToken(r.Context(), session.User, session.Token); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("user logged out", slog.String("userID", session.User.ID))
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
