// Package redis provides the Redis-backed revocation list used when more than
// one instance serves validation traffic.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "smartauth:revoked:"

// RevocationList stores revoked jtis as Redis keys with the token's remaining
// lifetime as TTL. Redis expiry keeps the list from growing unbounded.
type RevocationList struct {
	client *redis.Client
}

// NewRevocationList verifies connectivity and returns the list.
func NewRevocationList(ctx context.Context, opts *redis.Options) (*RevocationList, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RevocationList{client: client}, nil
}

func (l *RevocationList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return l.client.Set(ctx, keyPrefix+jti, 1, ttl).Err()
}

func (l *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RevocationList) Close() error {
	return l.client.Close()
}
