package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sungwon/request-mailer/internal/metrics"
)

// RoleAdmin is the privileged role: it sees and retries every user's
// deliveries and may dispatch to unassigned recipients.
const RoleAdmin = "admin"

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	userEmailKey contextKey = "user_email"
	userRoleKey  contextKey = "user_role"
)

// UserFromContext retrieves the user ID from the request context.
// Returns uuid.Nil if no user is set.
func UserFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(userIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// UserEmailFromContext retrieves the user email from the request context.
func UserEmailFromContext(ctx context.Context) string {
	if email, ok := ctx.Value(userEmailKey).(string); ok {
		return email
	}
	return ""
}

// RoleFromContext retrieves the user role from the request context.
// Returns an empty string if no role is set.
func RoleFromContext(ctx context.Context) string {
	if role, ok := ctx.Value(userRoleKey).(string); ok {
		return role
	}
	return ""
}

// IsPrivileged reports whether the authenticated user has the admin role.
func IsPrivileged(ctx context.Context) bool {
	return RoleFromContext(ctx) == RoleAdmin
}

// WithUser stores an authenticated identity in ctx.
func WithUser(ctx context.Context, userID uuid.UUID, email, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, userEmailKey, email)
	return context.WithValue(ctx, userRoleKey, role)
}

// JWTAuth returns an HTTP middleware that validates JWT Bearer tokens and
// injects the user claims into the request context. EventSource clients
// cannot set headers, so an access_token query parameter is accepted as a
// fallback.
func JWTAuth(jwtService *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, msg := bearerToken(r)
			if tokenStr == "" {
				metrics.APIAuthFailuresTotal.Inc()
				http.Error(w, msg, http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenStr)
			if err != nil {
				metrics.APIAuthFailuresTotal.Inc()
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				metrics.APIAuthFailuresTotal.Inc()
				http.Error(w, `{"error":"invalid token claims"}`, http.StatusUnauthorized)
				return
			}

			ctx := WithUser(r.Context(), userID, claims.Email, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (token, errMsg string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if q := r.URL.Query().Get("access_token"); q != "" {
			return q, ""
		}
		return "", `{"error":"authorization header required"}`
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", `{"error":"invalid authorization format, expected Bearer <token>"}`
	}
	if parts[1] == "" {
		return "", `{"error":"empty token"}`
	}
	return parts[1], ""
}
