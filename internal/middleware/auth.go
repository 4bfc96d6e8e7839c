package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"aiaxstock/internal/model"
	"aiaxstock/internal/service"
	"aiaxstock/pkg/apierror"
)

// SessionKey is the key for storing the caller's session in request context.
const SessionKey contextKey = "session"

// SessionValidator resolves a session token.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*model.Session, error)
}

// NewSessionMiddleware requires a valid session token in X-Token (or an
// Authorization bearer) and stores the session in the request context.
func NewSessionMiddleware(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				apierror.Unauthorized("Authentication required. Use the X-Token header.").Write(w)
				return
			}

			session, err := sessions.Validate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, service.ErrInvalidToken) {
					Logger(r.Context()).WithError(err).Error("session lookup failed")
					apierror.ServiceUnavailable("session store unavailable").Write(w)
					return
				}
				apierror.Unauthorized("Invalid or expired token").Write(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// RequireRole rejects sessions that were not opened with role.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil || session.Role != role {
				apierror.Forbidden(string(role) + " role required").Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenFromRequest returns the session token sent with r.
func TokenFromRequest(r *http.Request) string {
	if token := r.Header.Get("X-Token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// WithSession returns ctx carrying session.
func WithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// SessionFromContext retrieves the session from request context.
func SessionFromContext(ctx context.Context) *model.Session {
	if s, ok := ctx.Value(SessionKey).(*model.Session); ok {
		return s
	}
	return nil
}
