package domain

import (
	"context"
	"time"
)

// ClientRepository stores registered OAuth client records.
type ClientRepository interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
	// TouchClientLastUsed records a token issuance against the client.
	TouchClientLastUsed(ctx context.Context, clientID string, when time.Time) error
	ListClients(ctx context.Context) ([]*Client, error)
}

// AuthCodeRepository stores authorization codes.
type AuthCodeRepository interface {
	SaveAuthCode(ctx context.Context, code *AuthorizationCode) error
	// ConsumeAuthCode atomically flips the code's consumed flag and returns the
	// record as it was before consumption. The flip must be a compare-and-update
	// in the backing store: of two concurrent calls for the same code, exactly
	// one receives the record; the other gets ErrNotFound. Expiry, redirect and
	// PKCE checks are the caller's job.
	ConsumeAuthCode(ctx context.Context, code string) (*AuthorizationCode, error)
	DeleteExpiredAuthCodes(ctx context.Context, olderThan time.Time) (int64, error)
}

// TokenRepository stores issued token records.
type TokenRepository interface {
	StoreToken(ctx context.Context, token *Token) error
	GetToken(ctx context.Context, id string) (*Token, error)
	// GetRefreshTokenByHash looks up a refresh token by the sha256 hex hash of
	// its opaque value, regardless of revocation state. Revocation is the
	// caller's check so that reuse of a revoked token can be detected.
	GetRefreshTokenByHash(ctx context.Context, valueHash string) (*Token, error)
	RevokeToken(ctx context.Context, id string) error
	// RevokeTokenFamily revokes every refresh token sharing the family ID.
	RevokeTokenFamily(ctx context.Context, familyID string) error
	// RevokeSubjectClientTokens revokes all refresh tokens of a (subject,
	// client) pair. Used by the consent revocation cascade.
	RevokeSubjectClientTokens(ctx context.Context, subject, clientID string) error
	DeleteExpiredTokens(ctx context.Context, olderThan time.Time) (int64, error)
}

// SigningKeyRepository persists the signing-key set.
type SigningKeyRepository interface {
	SaveKey(ctx context.Context, key *SigningKey) error
	GetKey(ctx context.Context, kid string) (*SigningKey, error)
	UpdateKeyStatus(ctx context.Context, kid string, status KeyStatus, notAfter time.Time) error
	ListKeys(ctx context.Context, statuses ...KeyStatus) ([]*SigningKey, error)
	DeleteKey(ctx context.Context, kid string) error
}

// ConsentRepository stores per-(subject, client) scope grants.
type ConsentRepository interface {
	// UpsertConsent records a grant, merging scopes into an existing active
	// record for the pair if one exists.
	UpsertConsent(ctx context.Context, record *ConsentRecord) error
	GetConsent(ctx context.Context, subject, clientID string) (*ConsentRecord, error)
	RevokeConsent(ctx context.Context, subject, clientID string, when time.Time) error
}

// UserRepository stores subject records.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}
