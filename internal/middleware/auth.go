// Package middleware hosts authentication, logging, and rate limiting middleware.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"onboard/internal/identity"
)

// contextKey avoids collisions when storing values in request contexts.
type contextKey string

const (
	ctxUserIDKey contextKey = "user_id"
	ctxEmailKey  contextKey = "email"
	ctxTokenKey  contextKey = "token"
)

// TokenVerifier checks a bearer token. identity.Service implements it.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*identity.Claims, error)
}

// AuthMiddleware validates bearer JWTs and injects user identity into the context.
type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate enforces bearer auth and populates user details on the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		claims, err := m.verifier.VerifyToken(r.Context(), token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims, token)))
	})
}

// Optional attaches the user when a valid bearer token is present and lets
// anonymous requests through untouched. The onboarding form is public; a
// signed-in user only becomes the owner of the submitted client.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if claims, err := m.verifier.VerifyToken(r.Context(), token); err == nil {
				r = r.WithContext(withClaims(r.Context(), claims, token))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func withClaims(ctx context.Context, claims *identity.Claims, token string) context.Context {
	ctx = context.WithValue(ctx, ctxUserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, ctxEmailKey, claims.Email)
	return context.WithValue(ctx, ctxTokenKey, token)
}

// UserIDFromContext returns the authenticated user's UUID from context.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(ctxUserIDKey)
	id, ok := v.(uuid.UUID)
	return id, ok
}

// EmailFromContext returns the authenticated user's email from context.
func EmailFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxEmailKey)
	s, ok := v.(string)
	return s, ok
}

// TokenFromContext returns the raw bearer token that authenticated the request.
func TokenFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxTokenKey)
	s, ok := v.(string)
	return s, ok
}
