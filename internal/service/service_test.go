package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/repository"
	"github.com/sakif/tasklist/internal/repository/memory"
	"github.com/sakif/tasklist/internal/repository/sqlite"
)

const testSecret = "test-secret-at-least-16-bytes"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires the three auth types over one store, in-memory unless a
// test asks otherwise. bcrypt runs at its minimum cost so the suite stays
// fast.
type fixture struct {
	store       repository.Store
	credentials *CredentialStore
	tokens      *TokenManager
	tasks       *TaskService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test swap the user repository the TokenManager
// sees, typically for a failing wrapper around the real store.
func newFixtureWith(t *testing.T, wrap func(repository.UserRepository) repository.UserRepository) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.New(), wrap)
}

// newFileFixture runs the services over a SQLite file in a temp dir, the
// default production backend, with a real multi-connection pool.
func newFileFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "tasklist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return newFixtureOn(t, store, nil)
}

func newFixtureOn(t *testing.T, store repository.Store, wrap func(repository.UserRepository) repository.UserRepository) *fixture {
	t.Helper()

	passwords, err := auth.NewPasswordServiceWithCost(bcrypt.MinCost)
	require.NoError(t, err)
	signer, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	var users repository.UserRepository = store
	if wrap != nil {
		users = wrap(store)
	}

	return &fixture{
		store:       store,
		credentials: NewCredentialStore(store, passwords, testLogger()),
		tokens:      NewTokenManager(users, signer, testLogger()),
		tasks:       NewTaskService(store, testLogger()),
	}
}

func (f *fixture) register(t *testing.T, email string) (*model.User, string) {
	t.Helper()
	ctx := context.Background()

	user, err := f.credentials.CreateUser(ctx, email, "password123")
	require.NoError(t, err)
	token, err := f.tokens.GenerateAuthToken(ctx, user)
	require.NoError(t, err)
	return user, token
}

var errStoreDown = errors.New("store unavailable")

// flakyUsers fails selected token operations and delegates the rest.
type flakyUsers struct {
	repository.UserRepository
	failPush   bool
	failPull   bool
	failLookup bool

	// onLookup runs before the lookup is delegated.
	onLookup func(ctx context.Context)
	lookupCtxErr error
}

func (f *flakyUsers) PushToken(ctx context.Context, userID string, tok model.Token) error {
	if f.failPush {
		return errStoreDown
	}
	return f.UserRepository.PushToken(ctx, userID, tok)
}

func (f *flakyUsers) PullToken(ctx context.Context, userID, token string) error {
	if f.failPull {
		return errStoreDown
	}
	return f.UserRepository.PullToken(ctx, userID, token)
}

func (f *flakyUsers) GetUserByToken(ctx context.Context, userID string, tok model.Token) (*model.User, error) {
	if f.onLookup != nil {
		f.onLookup(ctx)
	}
	f.lookupCtxErr = ctx.Err()
	if f.failLookup {
		return nil, errStoreDown
	}
	return f.UserRepository.GetUserByToken(ctx, userID, tok)
}
