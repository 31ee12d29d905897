package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryRevocationList is a single-instance RevocationList backed by a TTL
// cache. Entries evict themselves when the token they block would have
// expired anyway.
type MemoryRevocationList struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewMemoryRevocationList starts the eviction loop and returns the list.
func NewMemoryRevocationList() *MemoryRevocationList {
	c := ttlcache.New[string, struct{}]()
	go c.Start()
	return &MemoryRevocationList{cache: c}
}

func (l *MemoryRevocationList) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired, nothing to block.
		return nil
	}
	l.cache.Set(jti, struct{}{}, ttl)
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	return l.cache.Has(jti), nil
}

func (l *MemoryRevocationList) Close() error {
	l.cache.Stop()
	return nil
}

var _ RevocationList = (*MemoryRevocationList)(nil)
