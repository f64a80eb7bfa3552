package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func platformToken(t *testing.T, userID string) string {
	t.Helper()
	return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), PlatformClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Hour)),
		},
	})
}

func TestJWTVerifier(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	ctx := context.Background()

	id, err := verifier.ResolveCaller(ctx, platformToken(t, "user-42"))
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)

	// Токен в том виде, в каком его выдаёт сервис аутентификации платформы.
	issued := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"userId": "alice", "exp": 9999999999})
	id, err = verifier.ResolveCaller(ctx, issued)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "user-42.deadbeef"},
		{
			name: "expired",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
				"userId": "user-42", "exp": time.Now().Add(-time.Minute).Unix(),
			}),
		},
		{
			name:  "no expiry",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"userId": "user-42"}),
		},
		{
			name:  "no user id",
			token: signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": 9999999999}),
		},
		{
			name:  "other secret",
			token: signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"userId": "user-42", "exp": 9999999999}),
		},
		{
			name:  "other algorithm",
			token: signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"userId": "user-42", "exp": 9999999999}),
		},
		{
			name:  "unsigned",
			token: signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"userId": "user-42", "exp": 9999999999}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.ResolveCaller(ctx, tt.token)
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestJWTVerifier_EmptySecret(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"userId": "user-42", "exp": 9999999999})

	_, err := NewJWTVerifier("").ResolveCaller(context.Background(), token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

type stubResolver struct {
	userID string
	err    error
}

func (s stubResolver) ResolveCaller(ctx context.Context, token string) (string, error) {
	return s.userID, s.err
}

func TestAuthMiddleware(t *testing.T) {
	tokens := NewJWTVerifier(testSecret)

	type want struct {
		statusCode int
		userID     string
	}

	tests := []struct {
		name     string
		resolver CallerResolver
		prepare  func(r *http.Request)
		want     want
	}{
		{
			name:     "bearer header",
			resolver: tokens,
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+platformToken(t, "alice"))
			},
			want: want{statusCode: http.StatusOK, userID: "alice"},
		},
		{
			name:     "auth cookie",
			resolver: tokens,
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "auth_token", Value: platformToken(t, "bob")})
			},
			want: want{statusCode: http.StatusOK, userID: "bob"},
		},
		{
			name:     "no token",
			resolver: tokens,
			prepare:  func(r *http.Request) {},
			want:     want{statusCode: http.StatusUnauthorized},
		},
		{
			name:     "bad token",
			resolver: tokens,
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer alice.deadbeef")
			},
			want: want{statusCode: http.StatusUnauthorized},
		},
		{
			name:     "resolver unavailable",
			resolver: stubResolver{err: errors.New("dial tcp: connection refused")},
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer anything")
			},
			want: want{statusCode: http.StatusServiceUnavailable},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id, ok := GetUserIDFromContext(r.Context())
				require.True(t, ok)
				gotUserID = id
			})

			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			tt.prepare(r)
			w := httptest.NewRecorder()

			NewAuthMiddleware(tt.resolver).Middleware(next).ServeHTTP(w, r)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, tt.want.statusCode, res.StatusCode)
			assert.Equal(t, tt.want.userID, gotUserID)
		})
	}
}
