package jwt

import (
	"net/http"
	"strings"

	"github.com/kathanp/emailbot/pkg/logger"
)

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Middleware requires a valid access token in the Authorization header and
// stores its claims in the request context. onError defaults to a plain 401.
func Middleware(s *Service, onError ErrorHandler) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			claims, err := s.Parse(token, AudienceAccess)
			if err != nil {
				onError(w, r, err)
				return
			}
			ctx := SetClaims(r.Context(), claims)
			ctx = logger.WithUserID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
