package dedup

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisKeyStore is a Redis-backed KeyStore. SETNX gives the atomic per-key
// check-and-set the dedup contract requires, and keys survive process
// restarts, so the no-double-ingestion guarantee holds across redeploys and
// across multiple service instances.
type RedisKeyStore struct {
	client *redis.Client
}

// NewRedisKeyStore creates a key store on an existing Redis client.
func NewRedisKeyStore(client *redis.Client) *RedisKeyStore {
	return &RedisKeyStore{client: client}
}

func dedupKey(tenantID, key string) string {
	return fmt.Sprintf("dedup:%s:%s", tenantID, key)
}

// Register implements KeyStore. Keys are stored without expiry; the
// no-double-ingestion guarantee has no time bound.
func (s *RedisKeyStore) Register(ctx context.Context, tenantID, key string) (bool, error) {
	first, err := s.client.SetNX(ctx, dedupKey(tenantID, key), "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("dedup register %s/%s: %w", tenantID, key, err)
	}
	return first, nil
}

// Seen implements KeyStore.
func (s *RedisKeyStore) Seen(ctx context.Context, tenantID, key string) (bool, error) {
	n, err := s.client.Exists(ctx, dedupKey(tenantID, key)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup %s/%s: %w", tenantID, key, err)
	}
	return n > 0, nil
}

var _ KeyStore = (*RedisKeyStore)(nil)
