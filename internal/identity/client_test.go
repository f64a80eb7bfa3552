package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ecoshare/internal/middleware"
)

func TestResolveCaller_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_id":"64f1c2","username":"alice","email":"alice@example.com"}`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	userID, err := NewClient(ts.URL).ResolveCaller(ctx, "secret-token")
	require.NoError(t, err)
	assert.Equal(t, "64f1c2", userID)
}

func TestResolveCaller_Unauthorized(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).ResolveCaller(context.Background(), "expired")
	require.ErrorIs(t, err, middleware.ErrUnauthenticated)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolveCaller_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"u-7"}`))
	}))
	defer ts.Close()

	userID, err := NewClient(ts.URL).ResolveCaller(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "u-7", userID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestResolveCaller_EmptyProfile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).ResolveCaller(context.Background(), "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, middleware.ErrUnauthenticated)
}
