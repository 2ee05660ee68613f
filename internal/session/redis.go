package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ Store[struct{}] = (*RedisStore[struct{}])(nil)

// RedisStore keeps JSON encoded values under prefix+id with a TTL.
type RedisStore[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore[T any](client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore[T] {
	return &RedisStore[T]{client: client, prefix: prefix, ttl: ttl, logger: logger.Named("RedisStore")}
}

func (s *RedisStore[T]) key(id string) string { return s.prefix + id }

func (s *RedisStore[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var v T
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return v, false, nil
		}
		s.logger.Error("Failed to get value from redis", zap.String("key", s.key(id)), zap.Error(err))
		return v, false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", s.key(id), err)
	}
	return v, true, nil
}

func (s *RedisStore[T]) Put(ctx context.Context, id string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key(id), err)
	}
	if err := s.client.Set(ctx, s.key(id), b, s.ttl).Err(); err != nil {
		s.logger.Error("Failed to set value in redis", zap.String("key", s.key(id)), zap.Error(err))
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore[T]) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
