package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/redis/go-redis/v9"
)

// attemptGrace keeps a record around briefly after its window lapses
const attemptGrace = time.Minute

// RedisAttemptStore keeps login failure counters server-side, shared by
// every session and every instance
type RedisAttemptStore struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	opTimeout time.Duration
}

// NewRedisAttemptStore creates a store whose records outlive the throttle window
func NewRedisAttemptStore(client redis.UniversalClient, prefix string, window, opTimeout time.Duration) *RedisAttemptStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisAttemptStore{
		client:    client,
		prefix:    prefix,
		ttl:       window + attemptGrace,
		opTimeout: opTimeout,
	}
}

func (s *RedisAttemptStore) key(key string) string {
	return s.prefix + ":attempts:" + key
}

func (s *RedisAttemptStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *RedisAttemptStore) GetAttempt(ctx context.Context, key string) (*models.AttemptRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get attempts: %w", err)
	}

	var record models.AttemptRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode attempt record: %w", err)
	}
	return &record, nil
}

func (s *RedisAttemptStore) SaveAttempt(ctx context.Context, record *models.AttemptRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode attempt record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(record.Key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set attempts: %w", err)
	}
	return nil
}

func (s *RedisAttemptStore) DeleteAttempt(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete attempts: %w", err)
	}
	return nil
}
