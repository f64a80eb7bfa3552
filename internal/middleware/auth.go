// Package middleware содержит HTTP middleware сервиса обмена вещами.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "userID"

const (
	authCookieName = "auth_token"
	bearerPrefix   = "Bearer "
)

// ErrUnauthenticated возвращается, если токен отсутствует, просрочен или подделан.
var ErrUnauthenticated = errors.New("unauthenticated")

// CallerResolver определяет пользователя по токену запроса.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, token string) (string, error)
}

// AuthMiddleware проверяет аутентификацию пользователя через CallerResolver.
type AuthMiddleware struct {
	resolver CallerResolver
}

// NewAuthMiddleware создаёт AuthMiddleware с указанным способом проверки токенов.
func NewAuthMiddleware(resolver CallerResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Middleware проверяет токен и добавляет идентификатор пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		userID, err := a.resolver.ResolveCaller(r.Context(), token)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// TokenFromRequest извлекает токен из заголовка Authorization или cookie auth_token.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	if cookie, err := r.Cookie(authCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// WithUserID возвращает контекст с идентификатором пользователя.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
