package middleware

import (
	"context"
	"livesession/internal/model"
	"livesession/internal/service"
	"net/http"
	"strings"
)

type contextKey string

const RequesterKey contextKey = "requester"

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireUser validates the identity JWT from the Authorization header
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.authSvc.ValidateUserToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		req := model.Requester{
			ID:          claims.UserID,
			DisplayName: claims.DisplayName,
			Role:        claims.Role,
		}
		ctx := context.WithValue(r.Context(), RequesterKey, req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequester extracts the authenticated requester from context
func GetRequester(ctx context.Context) (model.Requester, bool) {
	req, ok := ctx.Value(RequesterKey).(model.Requester)
	return req, ok
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
