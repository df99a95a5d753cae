package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"geekship/pkg/domain"
)

// JWTValidator defines the interface for validating bearer tokens. The
// environment authenticates callers; the core only consumes the resulting
// identity.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims carries the authenticated caller identity.
type JWTClaims struct {
	UserID domain.UserID
}

type contextKeyCaller struct{}

var ContextKeyCaller = contextKeyCaller{}

// Caller retrieves the authenticated caller identity from the context.
// Returns the nil sentinel when no caller is attached.
func Caller(ctx context.Context) domain.UserID {
	uid, ok := ctx.Value(ContextKeyCaller).(domain.UserID)
	if !ok {
		return domain.NilUserID
	}
	return uid
}

// WithCaller attaches a caller identity to the context. Exported for handler
// tests that bypass the middleware.
func WithCaller(ctx context.Context, uid domain.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, uid)
}

// RequireAuth rejects requests without a valid bearer token and attaches the
// caller identity to the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w, "invalid or expired token")
				return
			}
			ctx := WithCaller(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
