package auth

import (
	"context"
	"net/http"
)

var userIDKey int

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, &userIDKey, userID)
}

// GetUserID returns the id of the signed in caller, if there is one.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(&userIDKey).(string)
	return v, ok && v != ""
}

// Register puts the session manager in the request context and resolves the
// session cookie into a user id. It never rejects a request; handlers decide
// what an anonymous caller may do.
func Register(sm *SessionManager) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		r = r.WithContext(WithSessionManager(r.Context(), sm))

		if s, ok := sm.GetSessionFromRequest(r); ok {
			r = r.WithContext(WithUserID(r.Context(), s.UserID))
		}

		next(rw, r)
	}
}

var sessionManagerKey int

func WithSessionManager(ctx context.Context, sm *SessionManager) context.Context {
	return context.WithValue(ctx, &sessionManagerKey, sm)
}

func GetSessionManager(ctx context.Context) *SessionManager {
	if v := ctx.Value(&sessionManagerKey); v != nil {
		return v.(*SessionManager)
	}

	return nil
}
