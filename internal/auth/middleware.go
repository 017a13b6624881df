package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/tasklist/internal/model"
)

// HeaderName carries the session token on requests, and on the responses
// to register and login.
const HeaderName = "X-Auth"

// unauthorizedBody is the one and only response to a rejected request.
// It never says whether the header was missing, the signature was bad, or
// the token was revoked.
const unauthorizedBody = `{"error":"unauthorized","message":"valid authentication required"}` + "\n"

// Session is what a successful authentication puts on the request context:
// the user the token belongs to, and the exact token string presented (so
// logout can remove that one token and leave the user's other sessions).
type Session struct {
	User  *model.User
	Token string
}

// TokenVerifier checks a raw token string. service.TokenManager is the
// production implementation.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*Session, error)
}

// contextKey is unexported so only this package can read or write the
// session on a context.
type contextKey struct{}

var sessionKey contextKey

// RequireAuth gates protected routes.
//
// Each request is either accepted, in which case the Session is attached to
// the context and next runs, or rejected with 401 and the generic body.
// A missing header is treated exactly like an invalid token.
func RequireAuth(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderName)

			var (
				session *Session
				err     error
			)
			if token != "" {
				session, err = verifier.VerifyToken(r.Context(), token)
			}
			if token == "" || err != nil || session == nil || session.User == nil {
				// Debug only: the reason is for operators, never for the client.
				attrs := []any{slog.String("path", r.URL.Path), slog.Bool("header_present", token != "")}
				if err != nil {
					attrs = append(attrs, slog.String("error", err.Error()))
				}
				logger.Debug("request rejected", attrs...)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(unauthorizedBody))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session attached by RequireAuth.
// The second result is false on routes that are not behind RequireAuth.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil && s.User != nil
}
