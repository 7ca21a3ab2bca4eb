// Package dedup provides the durable "already-ingested" key set that
// guarantees a canonical transaction is committed at most once per tenant,
// across separate jobs and uploads.
package dedup

import (
	"context"
	"sync"
)

// KeyStore registers idempotency keys scoped to a tenant. Register must be
// atomic per key across concurrently running jobs: exactly one caller wins
// for a given (tenant, key) pair, even when two jobs race on the same
// external reference.
type KeyStore interface {
	// Register records the key and reports whether this call was the first
	// to see it (true = accept the record, false = duplicate).
	Register(ctx context.Context, tenantID, key string) (bool, error)

	// Seen reports whether a key is already registered, without
	// registering it.
	Seen(ctx context.Context, tenantID, key string) (bool, error)
}

// MemoryKeyStore is a process-local KeyStore. It is safe for concurrent use
// within one process but loses state on restart and cannot coordinate across
// processes; suitable only for single-process demos and tests. Production
// deployments use RedisKeyStore.
type MemoryKeyStore struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

// NewMemoryKeyStore creates an empty in-memory key store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{seen: make(map[string]map[string]struct{})}
}

// Register implements KeyStore.
func (s *MemoryKeyStore) Register(ctx context.Context, tenantID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.seen[tenantID]
	if !ok {
		keys = make(map[string]struct{})
		s.seen[tenantID] = keys
	}
	if _, dup := keys[key]; dup {
		return false, nil
	}
	keys[key] = struct{}{}
	return true, nil
}

// Seen implements KeyStore.
func (s *MemoryKeyStore) Seen(ctx context.Context, tenantID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.seen[tenantID]
	if !ok {
		return false, nil
	}
	_, dup := keys[key]
	return dup, nil
}

var _ KeyStore = (*MemoryKeyStore)(nil)
