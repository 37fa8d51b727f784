package fingerprint

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces fingerprint keys in a shared Redis.
const DefaultKeyPrefix = "readingd:fp:"

// clearBatch is the SCAN count hint used by Clear.
const clearBatch = 500

// RedisStore keeps each fingerprint as a key with no expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store on client. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Record(ctx context.Context, fp string) (bool, error) {
	if fp == "" {
		return false, ErrEmptyFingerprint
	}

	ok, err := s.client.SetNX(ctx, s.prefix+fp, time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("recording fingerprint: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Forget(ctx context.Context, fp string) error {
	if err := s.client.Del(ctx, s.prefix+fp).Err(); err != nil {
		return fmt.Errorf("forgetting fingerprint: %w", err)
	}
	return nil
}

// Clear deletes every key under the store's prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", clearBatch).Iterator()

	batch := make([]string, 0, clearBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == clearBatch {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("clearing fingerprints: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning fingerprints: %w", err)
	}

	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("clearing fingerprints: %w", err)
		}
	}
	return nil
}
