package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/observability"
	"github.com/sakif/tasklist/internal/repository"
)

// verifyLookupTimeout bounds the revocation lookup, which runs detached from
// the request's cancellation.
const verifyLookupTimeout = 5 * time.Second

// TokenManager issues, verifies and revokes session tokens.
//
// A token is valid only while BOTH hold: the signature checks out, and the
// exact string is still in its owner's token list. Removing it from the list
// is logout.
type TokenManager struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

var _ auth.TokenVerifier = (*TokenManager)(nil)

func NewTokenManager(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// GenerateAuthToken signs a new access token for user and appends it to the
// user's list.
//
// The token is returned only after the store confirmed the append. If the
// append fails the caller gets apperror.ErrPersistence and no token, so a
// signed string that never made it into the list is never handed out.
// On success the token is also appended to user.Tokens.
func (m *TokenManager) GenerateAuthToken(ctx context.Context, user *model.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("generating token: user has no ID")
	}

	signed, err := m.tokens.Sign(user.ID, model.TokenKindAccess)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}

	tok := model.Token{Kind: model.TokenKindAccess, Token: signed}
	if err := m.users.PushToken(ctx, user.ID, tok); err != nil {
		m.logger.Error("failed to store token",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return "", apperror.Persistence("saving token", err)
	}

	user.Tokens = append(user.Tokens, tok)
	observability.TokensIssuedTotal.Inc()
	return signed, nil
}

// VerifyToken resolves a raw token to the session it belongs to.
//
// A request that was cancelled before verification starts is rejected
// without touching the store. Once the signature has been checked, the
// revocation lookup runs to completion even if the request is cancelled
// meanwhile, so a verification is never left half done.
func (m *TokenManager) VerifyToken(ctx context.Context, token string) (_ *auth.Session, err error) {
	defer func() {
		observability.VerificationsTotal.WithLabelValues(observability.ResultOf(err, isClientOutcome)).Inc()
	}()

	if err := ctx.Err(); err != nil {
		return nil, apperror.InvalidToken(err)
	}

	claims, err := m.tokens.Parse(token)
	if err != nil {
		return nil, apperror.InvalidToken(err)
	}
	if claims.Kind != model.TokenKindAccess {
		return nil, apperror.InvalidToken(fmt.Errorf("unexpected token kind %q", claims.Kind))
	}

	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verifyLookupTimeout)
	defer cancel()

	user, err := m.users.GetUserByToken(lookupCtx, claims.Subject, model.Token{Kind: claims.Kind, Token: token})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidToken(err)
		}
		m.logger.Error("token lookup failed", slog.String("error", err.Error()))
		return nil, apperror.Persistence("verifying token", err)
	}

	return &auth.Session{User: user, Token: token}, nil
}

// RemoveToken deletes token from user's list. Removing a token that is
// already gone succeeds.
func (m *TokenManager) RemoveToken(ctx context.Context, user *model.User, token string) error {
	if user == nil || user.ID == "" {
		return errors.New("removing token: user has no ID")
	}

	if err := m.users.PullToken(ctx, user.ID, token); err != nil {
		m.logger.Error("failed to remove token",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return apperror.Persistence("removing token", err)
	}

	kept := user.Tokens[:0:0]
	for _, t := range user.Tokens {
		if t.Token != token {
			kept = append(kept, t)
		}
	}
	user.Tokens = kept

	observability.TokensRevokedTotal.Inc()
	return nil
}
