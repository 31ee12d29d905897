// Package cache holds the fast-path revocation list consulted during access
// token validation. Access tokens verify locally against the signing key, so
// revocation is the only check that needs shared state; the list keys on jti
// and entries expire with the token they block.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RevocationList answers "has this jti been revoked" without a database
// round trip per validation.
type RevocationList interface {
	// Revoke marks a jti revoked until its natural expiry. The ttl should be
	// the remaining token lifetime; entries past it are garbage anyway.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked reports whether the jti is on the list.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Close() error
}

// HashToken returns the sha256 hex digest of an opaque token value. Refresh
// tokens are stored and looked up by this hash so a database leak does not
// leak usable credentials.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
