package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ecoshare/internal/middleware"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDRESS is not set")
	}

	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}), time.Minute)
	require.NoError(t, store.Ping(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func createSession(t *testing.T, store *RedisStore, token, userID string, ttl time.Duration) {
	t.Helper()
	b, err := json.Marshal(Session{UserID: userID, IssuedAt: time.Now().Unix()})
	require.NoError(t, err)
	require.NoError(t, store.rdb.Set(context.Background(), key(token), b, ttl).Err())
}

func TestRedisStore_ResolveCaller(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	token := uuid.NewString()

	createSession(t, store, token, "alice", time.Second)

	userID, err := store.ResolveCaller(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	ttl, err := store.rdb.TTL(ctx, key(token)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Second, "lookup extends the session")

	require.NoError(t, store.rdb.Del(ctx, key(token)).Err())

	_, err = store.ResolveCaller(ctx, token)
	require.ErrorIs(t, err, middleware.ErrUnauthenticated)
}

func TestRedisStore_UnknownToken(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ResolveCaller(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, middleware.ErrUnauthenticated)
}

func TestRedisStore_MalformedSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	token := uuid.NewString()

	require.NoError(t, store.rdb.Set(ctx, key(token), "not json", time.Minute).Err())
	t.Cleanup(func() { _ = store.rdb.Del(ctx, key(token)).Err() })

	_, err := store.ResolveCaller(ctx, token)
	require.ErrorIs(t, err, middleware.ErrUnauthenticated)
}
