package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryProvider is an in-process Provider for single-node deployments and tests.
type MemoryProvider struct {
	store *gocache.Cache
}

// NewMemoryProvider creates a MemoryProvider whose expired entries are purged every cleanup.
func NewMemoryProvider(cleanup time.Duration) *MemoryProvider {
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &MemoryProvider{store: gocache.New(gocache.NoExpiration, cleanup)}
}

// Get returns a copy of the stored bytes or ErrCacheMiss.
func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.store.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	payload, _ := value.([]byte)
	return append([]byte(nil), payload...), nil
}

// Set stores a copy of value. A non-positive TTL never expires.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.store.Set(key, append([]byte(nil), value...), expiration(ttl))
	return nil
}

// Del removes key.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

// Close drops every entry.
func (m *MemoryProvider) Close() error {
	m.store.Flush()
	return nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}
