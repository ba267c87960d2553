package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "shop"

// RedisSessionStore keeps sessions in Redis with a per-key TTL
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + ":sess:" + id
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*models.SessionRecord, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return decodeSession(data)
}

func (s *RedisSessionStore) Save(ctx context.Context, record *models.SessionRecord, ttl time.Duration) error {
	data, err := encodeSession(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(record.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}
