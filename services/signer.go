package services

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
	"github.com/fhirhub/smartauth/keys"
)

// accessClaims is the JWT claim set of an access token. Scopes travel as a
// string slice claim; client_id is a distinct claim rather than aud so that
// resource servers can use aud for themselves later without a migration.
type accessClaims struct {
	jwt.RegisteredClaims
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
}

// TokenSigner mints and verifies RS256 access tokens against the managed key
// set. The kid header ties each token to the key that signed it, which is
// what lets rotation happen without invalidating outstanding tokens.
type TokenSigner struct {
	keys   *keys.Manager
	issuer string
}

func NewTokenSigner(km *keys.Manager, issuer string) *TokenSigner {
	return &TokenSigner{keys: km, issuer: issuer}
}

// Sign produces a compact JWT for the token record.
func (s *TokenSigner) Sign(rec *domain.Token) (string, error) {
	active, err := s.keys.Active()
	if err != nil {
		return "", err
	}
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        rec.ID,
			Issuer:    s.issuer,
			Subject:   rec.Subject,
			IssuedAt:  jwt.NewNumericDate(rec.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
		ClientID: rec.ClientID,
		Scopes:   rec.Scopes,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = active.Kid
	signed, err := tok.SignedString(active.Private)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify parses and verifies a compact JWT, returning its claims. Signature,
// algorithm, issuer and time checks all collapse into ErrTokenInvalid.
func (s *TokenSigner) Verify(ctx context.Context, raw string) (*domain.Claims, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.ErrTokenInvalid
		}
		return s.keys.Resolve(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithLeeway(domain.ClockSkew),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, errors.ErrTokenInvalid
	}
	out := &domain.Claims{
		ID:       claims.ID,
		Issuer:   claims.Issuer,
		Subject:  claims.Subject,
		ClientID: claims.ClientID,
		Scopes:   claims.Scopes,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
