package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/observability"
	"github.com/sakif/tasklist/internal/repository"
)

const (
	MinPasswordLength = 6
	MaxEmailLength    = 254
)

// emailPattern is a shape check, not RFC 5322: one @, no whitespace, and a
// dot somewhere in the domain.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CredentialStore owns accounts: creating them with a hashed password and
// checking an email/password pair.
type CredentialStore struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewCredentialStore(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *CredentialStore {
	return &CredentialStore{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// NormalizeEmail trims surrounding space and lowercases, so "Bob@X.com "
// and "bob@x.com" are the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser validates the input, hashes the password and stores the user.
//
// The plaintext password is never stored, logged or returned. A taken email
// comes back as apperror.ErrConflict from the store's unique constraint.
func (s *CredentialStore) CreateUser(ctx context.Context, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	user := &model.User{Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to create user", slog.String("error", err.Error()))
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user created", slog.String("userID", user.ID))
	return user, nil
}

// FindByCredentials returns the user for a matching email/password pair.
//
// Every way of getting it wrong (malformed email, unknown email, wrong
// password, unusable stored hash) returns the same apperror.Unauthenticated.
// Unknown emails still pay for one bcrypt comparison so the response time
// doesn't reveal which addresses are registered.
func (s *CredentialStore) FindByCredentials(ctx context.Context, email, password string) (_ *model.User, err error) {
	defer func() {
		observability.LoginsTotal.WithLabelValues(observability.ResultOf(err, isClientOutcome)).Inc()
	}()

	email = NormalizeEmail(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.VerifyDummy(password)
			return nil, apperror.Unauthenticated()
		}
		s.logger.Error("credential lookup failed", slog.String("error", err.Error()))
		return nil, apperror.Persistence("looking up credentials", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash unusable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.Unauthenticated()
	}

	return user, nil
}

// GetUserByID returns the stored user.
func (s *CredentialStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

func validateEmail(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > MaxEmailLength || !emailPattern.MatchString(email) {
		return apperror.ValidationFailed("email", "email is not a valid address")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	return nil
}
