package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretHasher hashes and verifies client secrets.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) error
}

// BcryptSecretHasher implements SecretHasher with bcrypt.
type BcryptSecretHasher struct {
	Cost int
}

// NewBcryptSecretHasher creates a hasher. Cost <= 0 selects bcrypt.DefaultCost.
func NewBcryptSecretHasher(cost int) *BcryptSecretHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptSecretHasher{Cost: cost}
}

// Hash generates a salted one-way hash of the secret.
func (h *BcryptSecretHasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}
	return string(hashed), nil
}

// Verify compares a stored hash with a presented secret. bcrypt comparison is
// constant time with respect to the secret.
func (h *BcryptSecretHasher) Verify(hash, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}

var _ SecretHasher = (*BcryptSecretHasher)(nil)
