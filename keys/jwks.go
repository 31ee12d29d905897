package keys

import (
	"context"
	"encoding/base64"
	"math/big"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/internal/crypto"
)

// JSONWebKey is the RFC 7517 representation of a single RSA public key.
type JSONWebKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JSONWebKeySet is the document served at the JWKS endpoint.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// PublicKeySet returns the active and retiring public keys as a JWKS. Pending
// and retired keys are excluded: nothing they signed should verify, and
// publishing them would only widen the attack surface.
func (m *Manager) PublicKeySet(ctx context.Context) (*JSONWebKeySet, error) {
	keys, err := m.repo.ListKeys(ctx, domain.KeyStatusActive, domain.KeyStatusRetiring)
	if err != nil {
		return nil, err
	}
	set := &JSONWebKeySet{Keys: make([]JSONWebKey, 0, len(keys))}
	for _, k := range keys {
		pub, err := crypto.ParsePublicKeyPEM(k.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		set.Keys = append(set.Keys, JSONWebKey{
			Kty: "RSA",
			Use: "sig",
			Alg: k.Algorithm,
			Kid: k.Kid,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return set, nil
}
