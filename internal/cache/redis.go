package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using one Redis string per summary.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type RedisConfig struct {
	Prefix string
}

// redisRecord is the JSON value stored under each key.
type redisRecord struct {
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, config RedisConfig) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		now:    time.Now,
	}
}

// redisKey builds the final Redis key with prefix.
func (s *RedisStore) redisKey(key SummaryKey) string {
	if s.prefix == "" {
		return key.String()
	}
	return s.prefix + ":" + key.String()
}

func (s *RedisStore) Get(ctx context.Context, key SummaryKey) (Record, bool, error) {
	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, unavailable("redis get", key, err)
	}

	var doc redisRecord
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Record{}, false, unavailable("redis decode", key, err)
	}

	return Record{Key: key, Summary: doc.Summary, UpdatedAt: doc.UpdatedAt}, true, nil
}

// Put overwrites the summary. SET replaces the whole value atomically and
// no expiry is attached.
func (s *RedisStore) Put(ctx context.Context, key SummaryKey, summary string) error {
	value, err := json.Marshal(redisRecord{Summary: summary, UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}

	if err := s.client.Set(ctx, s.redisKey(key), value, 0).Err(); err != nil {
		return unavailable("redis set", key, err)
	}
	return nil
}

// Ping checks if the Redis connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
