package domain

import "time"

// TokenKind discriminates access from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Token is the persisted record of an issued bearer credential.
//
// Access tokens are self-contained signed JWTs; their record exists for audit
// and for the revocation list. Refresh tokens are opaque values looked up by
// hash at use time, so they can be revoked without waiting for expiry. The
// plaintext value is never stored, only its sha256 hash.
type Token struct {
	ID        string    `bson:"_id"                 json:"jti"`
	Kind      TokenKind `bson:"token_kind"          json:"token_kind"`
	ValueHash string    `bson:"value_hash,omitempty" json:"-"`
	Subject   string    `bson:"subject"             json:"subject"`
	ClientID  string    `bson:"client_id"           json:"client_id"`
	Scopes    []string  `bson:"scopes"              json:"scopes"`
	// FamilyID groups a refresh token with its rotation descendants. Reuse of
	// a revoked family member revokes the whole family.
	FamilyID  string    `bson:"family_id,omitempty" json:"family_id,omitempty"`
	IssuedAt  time.Time `bson:"issued_at"           json:"issued_at"`
	ExpiresAt time.Time `bson:"expires_at"          json:"expires_at"`
	Revoked   bool      `bson:"revoked"             json:"revoked"`
}

// Expired reports whether the token is past its lifetime at the given instant.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Claims is the validated claim set of an access token.
type Claims struct {
	ID        string    `json:"jti"`
	Issuer    string    `json:"iss"`
	Subject   string    `json:"sub"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}
