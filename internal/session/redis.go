// Package session проверяет сессионные токены платформы, хранящиеся в Redis.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/ecoshare/internal/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session описывает запись сессии платформы. Срок действия задаёт TTL ключа в Redis.
type Session struct {
	UserID   string `json:"uid"`
	IssuedAt int64  `json:"iat"`
}

// RedisStore проверяет сессии, которые платформа хранит в Redis.
// Срок жизни сессии продлевается при каждом обращении.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore создаёт хранилище сессий.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func key(token string) string { return fmt.Sprintf("ecoshare:sess:%s", token) }

// ResolveCaller возвращает владельца сессии token.
func (s *RedisStore) ResolveCaller(ctx context.Context, token string) (string, error) {
	b, err := s.rdb.GetEx(ctx, key(token), s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", middleware.ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil || sess.UserID == "" {
		return "", middleware.ErrUnauthenticated
	}

	return sess.UserID, nil
}

// Ping проверяет соединение с Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close закрывает соединение с Redis.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
