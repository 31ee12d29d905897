package domain

import "time"

// KeyStatus is the lifecycle state of a signing key.
//
// Exactly one key is active at any instant. Retiring keys still verify
// signatures of unexpired tokens but no longer sign new ones. Retired keys are
// kept only until no token they could have signed can still be in flight.
type KeyStatus string

const (
	KeyStatusPending  KeyStatus = "pending"
	KeyStatusActive   KeyStatus = "active"
	KeyStatusRetiring KeyStatus = "retiring"
	KeyStatusRetired  KeyStatus = "retired"
)

// SigningKey is the persisted form of an asymmetric token-signing key pair.
// The private key PEM never leaves the key manager.
type SigningKey struct {
	Kid           string    `bson:"kid"             json:"kid"`
	Algorithm     string    `bson:"algorithm"       json:"algorithm"`
	PublicKeyPEM  string    `bson:"public_key"      json:"public_key"`
	PrivateKeyPEM string    `bson:"private_key"     json:"-"`
	Status        KeyStatus `bson:"status"          json:"status"`
	CreatedAt     time.Time `bson:"created_at"      json:"created_at"`
	NotBefore     time.Time `bson:"not_before"      json:"not_before"`
	NotAfter      time.Time `bson:"not_after,omitempty" json:"not_after,omitempty"`
}

// Verifiable reports whether the key may still verify signatures at the given
// instant. Active and retiring keys verify; retired and pending keys do not.
func (k *SigningKey) Verifiable(now time.Time) bool {
	switch k.Status {
	case KeyStatusActive:
		return true
	case KeyStatusRetiring:
		return k.NotAfter.IsZero() || now.Before(k.NotAfter)
	default:
		return false
	}
}
