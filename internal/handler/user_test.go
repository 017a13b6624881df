package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/handler"
)

func TestRegister(t *testing.T) {
	api := newTestAPI(t, nil)

	t.Run("created", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/users", "", `{"email":"New@Example.com","password":"password123"}`)

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.NotEmpty(t, rr.Header().Get(auth.HeaderName))

		body := decode[userBody](t, rr)
		assert.Equal(t, "new@example.com", body.User["email"])
		assert.NotEmpty(t, body.User["id"])
		assert.NotContains(t, body.User, "passwordHash")
		assert.NotContains(t, body.User, "tokens")
	})

	t.Run("duplicate", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/users", "", `{"email":"new@example.com","password":"another-pass"}`)
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Empty(t, rr.Header().Get(auth.HeaderName))
	})

	t.Run("validation", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/users", "", `{"email":"ok@example.com","password":"123"}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		body := decode[errorBody](t, rr)
		assert.Equal(t, "validation_error", body.Error)
		assert.Equal(t, "password", body.Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/users", "", `{"email":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestRegister_TokenFailureHidesDetails(t *testing.T) {
	api := newTestAPI(t, func(tok handler.Tokens) handler.Tokens {
		return failingTokens{Tokens: tok, err: apperror.Persistence("saving token", errBoom)}
	})

	rr := api.do(t, http.MethodPost, "/users", "", `{"email":"x@example.com","password":"password123"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, rr.Header().Get(auth.HeaderName))
	assert.NotContains(t, rr.Body.String(), "10.0.0.5")
	assert.Equal(t, "internal_error", decode[errorBody](t, rr).Error)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t, nil)
	first := api.register(t, "login@example.com")

	t.Run("success issues a second token", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/users/login", "", `{"email":"LOGIN@example.com","password":"password123"}`)
		require.Equal(t, http.StatusOK, rr.Code)

		second := rr.Header().Get(auth.HeaderName)
		assert.NotEmpty(t, second)
		assert.NotEqual(t, first, second)

		// Both sessions stay usable.
		assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/users/me", first, "").Code)
		assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/users/me", second, "").Code)
	})

	t.Run("failures are identical", func(t *testing.T) {
		wrong := api.do(t, http.MethodPost, "/users/login", "", `{"email":"login@example.com","password":"nope-nope"}`)
		unknown := api.do(t, http.MethodPost, "/users/login", "", `{"email":"ghost@example.com","password":"password123"}`)
		garbage := api.do(t, http.MethodPost, "/users/login", "", `not json`)

		for _, rr := range []*httptest.ResponseRecorder{wrong, unknown, garbage} {
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Empty(t, rr.Header().Get(auth.HeaderName))
		}
		assert.Equal(t, wrong.Body.String(), unknown.Body.String())
		assert.Equal(t, unknown.Body.String(), garbage.Body.String())
	})
}

func TestMeAndLogout(t *testing.T) {
	api := newTestAPI(t, nil)
	laptop := api.register(t, "multi@example.com")

	rr := api.do(t, http.MethodPost, "/users/login", "", `{"email":"multi@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	phone := rr.Header().Get(auth.HeaderName)

	me := api.do(t, http.MethodGet, "/users/me", laptop, "")
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "multi@example.com", decode[userBody](t, me).User["email"])

	out := api.do(t, http.MethodDelete, "/users/me/token", laptop, "")
	require.Equal(t, http.StatusOK, out.Code)
	assert.JSONEq(t, `{"message":"logged out"}`, out.Body.String())

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/users/me", laptop, "").Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodDelete, "/users/me/token", laptop, "").Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/users/me", phone, "").Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t, nil)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/users/me"},
		{http.MethodDelete, "/users/me/token"},
		{http.MethodGet, "/tasks"},
		{http.MethodPost, "/tasks"},
		{http.MethodGet, "/tasks/cv37img5tppgl4002kb0"},
		{http.MethodPatch, "/tasks/cv37img5tppgl4002kb0"},
		{http.MethodDelete, "/tasks/cv37img5tppgl4002kb0"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			for _, token := range []string{"", "garbage", strings.Repeat("a.", 3)} {
				rr := api.do(t, rt.method, rt.path, token, `{}`)
				assert.Equal(t, http.StatusUnauthorized, rr.Code)
			}
		})
	}
}
