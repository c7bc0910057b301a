package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/asia-ai/asia-chat/internal/services/session"
	"github.com/asia-ai/asia-chat/pkg/httpext"
)

type contextKey string

const (
	sessionKey contextKey = "session"
)

// SessionValidator resolves the login behind a request
type SessionValidator interface {
	ValidateSession(r *http.Request) (*session.Session, error)
}

// RequireSession rejects requests without a valid login and stores the session in the context
func RequireSession(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.ValidateSession(r)
			if err != nil {
				log.Debug().
					Err(err).
					Str("path", r.URL.Path).
					Msg("Session cookie rejected")
			}
			if sess == nil {
				httpext.JsonError(w, "Not authenticated", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// WithSession attaches sess to ctx
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// GetSession retrieves the session from the request context
func GetSession(r *http.Request) *session.Session {
	if sess, ok := r.Context().Value(sessionKey).(*session.Session); ok {
		return sess
	}
	return nil
}

// GetToken returns the backend bearer token of the current session
func GetToken(r *http.Request) string {
	if sess := GetSession(r); sess != nil {
		return sess.Token
	}
	return ""
}
