package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fhirhub/smartauth/cache"
	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
	"github.com/fhirhub/smartauth/internal/crypto"
	"github.com/fhirhub/smartauth/internal/metrics"
)

const (
	refreshTokenBytes = 32
	// ScopeOfflineAccess opts a grant into refresh tokens.
	ScopeOfflineAccess = "offline_access"
)

// TokenResponse is the token-endpoint success payload.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	Scopes       []string `json:"scope,omitempty"`
}

// TokenServiceConfig tunes token lifetimes.
type TokenServiceConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// TokenService implements the code-exchange, refresh, validation and
// revocation operations.
type TokenService struct {
	tokens   domain.TokenRepository
	clients  *ClientService
	codes    *AuthCodeService
	consents *ConsentService
	signer   *TokenSigner
	revoked  cache.RevocationList
	cfg      TokenServiceConfig
	now      func() time.Time
}

func NewTokenService(
	tokens domain.TokenRepository,
	clients *ClientService,
	codes *AuthCodeService,
	consents *ConsentService,
	signer *TokenSigner,
	revoked cache.RevocationList,
	cfg TokenServiceConfig,
) *TokenService {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 5 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	return &TokenService{
		tokens:   tokens,
		clients:  clients,
		codes:    codes,
		consents: consents,
		signer:   signer,
		revoked:  revoked,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ExchangeCode redeems an authorization code for tokens. The code is consumed
// before its bindings are checked, so a failed exchange burns it.
func (s *TokenService) ExchangeCode(ctx context.Context, code, verifier, redirectURI, clientID, clientSecret string) (*TokenResponse, error) {
	client, err := s.clients.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	rec, err := s.codes.Consume(ctx, code, redirectURI, verifier)
	if err != nil {
		return nil, err
	}
	// A code issued to one client never redeems for another, even one holding
	// valid credentials of its own.
	if rec.ClientID != client.ID {
		return nil, errors.ErrCodeInvalid
	}

	resp, err := s.mint(ctx, client.ID, rec.Subject, rec.Scopes, "")
	if err != nil {
		return nil, err
	}
	if err := s.consents.RecordGrant(ctx, rec.Subject, client.ID, rec.Scopes); err != nil {
		log.Error().Err(err).Str("subject", rec.Subject).Str("client_id", client.ID).Msg("failed to record consent grant")
	}
	s.clients.TouchLastUsed(ctx, client.ID)
	metrics.TokensIssuedTotal.Inc()
	log.Info().Str("client_id", client.ID).Str("subject", rec.Subject).Msg("authorization code exchanged")
	return resp, nil
}

// Refresh rotates a refresh token and mints a fresh access token. Use of an
// already-rotated token is treated as theft and revokes the whole family.
func (s *TokenService) Refresh(ctx context.Context, refreshToken, clientID, clientSecret string) (*TokenResponse, error) {
	client, err := s.clients.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	rec, err := s.tokens.GetRefreshTokenByHash(ctx, cache.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrTokenInvalid
		}
		return nil, err
	}
	if rec.ClientID != client.ID {
		return nil, errors.ErrTokenInvalid
	}
	if rec.Revoked {
		// The token was already rotated or explicitly revoked. Whoever holds
		// it now should hold nothing from this family.
		if err := s.tokens.RevokeTokenFamily(ctx, rec.FamilyID); err != nil {
			log.Error().Err(err).Str("family_id", rec.FamilyID).Msg("family revocation failed")
		}
		metrics.RefreshReuseDetectedTotal.Inc()
		log.Warn().
			Str("client_id", client.ID).
			Str("subject", rec.Subject).
			Str("family_id", rec.FamilyID).
			Msg("revoked refresh token presented, family revoked")
		return nil, errors.ErrTokenInvalid
	}
	if rec.Expired(s.now().Add(domain.ClockSkew)) {
		return nil, errors.ErrTokenInvalid
	}

	// A revoked grant forces the user back through authorization.
	grant, err := s.consents.GetGrant(ctx, rec.Subject, rec.ClientID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrTokenInvalid
		}
		return nil, err
	}
	if !grant.Active() || !grant.Covers(rec.Scopes) {
		return nil, errors.ErrTokenInvalid
	}

	if err := s.tokens.RevokeToken(ctx, rec.ID); err != nil {
		return nil, err
	}
	resp, err := s.mint(ctx, rec.ClientID, rec.Subject, rec.Scopes, rec.FamilyID)
	if err != nil {
		return nil, err
	}
	metrics.TokensRefreshedTotal.Inc()
	log.Info().Str("client_id", rec.ClientID).Str("subject", rec.Subject).Msg("refresh token rotated")
	return resp, nil
}

// mint issues an access token and, when the offline_access scope is granted,
// a refresh token. familyID carries across rotations; empty starts a family.
func (s *TokenService) mint(ctx context.Context, clientID, subject string, scopes []string, familyID string) (*TokenResponse, error) {
	now := s.now()
	access := &domain.Token{
		ID:        uuid.NewString(),
		Kind:      domain.TokenKindAccess,
		Subject:   subject,
		ClientID:  clientID,
		Scopes:    scopes,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}
	signed, err := s.signer.Sign(access)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.StoreToken(ctx, access); err != nil {
		return nil, err
	}

	resp := &TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.AccessTokenTTL.Seconds()),
		Scopes:      scopes,
	}

	if containsScope(scopes, ScopeOfflineAccess) {
		value, err := crypto.RandomToken(refreshTokenBytes)
		if err != nil {
			return nil, err
		}
		if familyID == "" {
			familyID = uuid.NewString()
		}
		refresh := &domain.Token{
			ID:        uuid.NewString(),
			Kind:      domain.TokenKindRefresh,
			ValueHash: cache.HashToken(value),
			Subject:   subject,
			ClientID:  clientID,
			Scopes:    scopes,
			FamilyID:  familyID,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		}
		if err := s.tokens.StoreToken(ctx, refresh); err != nil {
			return nil, err
		}
		resp.RefreshToken = value
	}
	return resp, nil
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// Validate verifies an access token locally: signature against the key set,
// time checks with skew, and a revocation-list lookup on the jti. No token
// store round trip on the happy path.
func (s *TokenService) Validate(ctx context.Context, raw string) (*domain.Claims, error) {
	claims, err := s.signer.Verify(ctx, raw)
	if err != nil {
		metrics.ValidationFailuresTotal.Inc()
		return nil, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		metrics.ValidationFailuresTotal.Inc()
		return nil, errors.ErrTokenInvalid
	}
	return claims, nil
}

// RevokeValue revokes a presented token string on behalf of the client that
// owns it. Refresh tokens are matched by hash; anything else is treated as an
// access JWT. Per RFC 7009 an unknown token is not an error.
func (s *TokenService) RevokeValue(ctx context.Context, value, clientID, clientSecret string) error {
	client, err := s.clients.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return err
	}

	if rec, err := s.tokens.GetRefreshTokenByHash(ctx, cache.HashToken(value)); err == nil {
		if rec.ClientID != client.ID {
			return nil
		}
		return s.RevokeID(ctx, rec.ID)
	}

	claims, err := s.signer.Verify(ctx, value)
	if err != nil || claims.ClientID != client.ID {
		return nil
	}
	return s.RevokeID(ctx, claims.ID)
}

// RevokeID revokes a token record by jti. Revoking an access token also
// places its jti on the revocation list for the remainder of its lifetime;
// revoking a refresh token denies every future refresh derived from it.
func (s *TokenService) RevokeID(ctx context.Context, id string) error {
	rec, err := s.tokens.GetToken(ctx, id)
	if err != nil {
		return err
	}
	if rec.Revoked {
		return nil
	}
	if err := s.tokens.RevokeToken(ctx, id); err != nil {
		return err
	}
	if rec.Kind == domain.TokenKindAccess {
		ttl := rec.ExpiresAt.Add(domain.ClockSkew).Sub(s.now())
		if err := s.revoked.Revoke(ctx, id, ttl); err != nil {
			log.Error().Err(err).Str("jti", id).Msg("failed to list revoked access token")
		}
	}
	metrics.TokensRevokedTotal.Inc()
	log.Info().Str("jti", id).Str("token_kind", string(rec.Kind)).Msg("token revoked")
	return nil
}

// PurgeExpired deletes token records that no flow can ever touch again.
// Refresh lookups and validation both re-check expiry, so this is
// housekeeping only.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpiredTokens(ctx, s.now().Add(-domain.ClockSkew))
}

// StartPurge runs the token purge loop until ctx is cancelled.
func (s *TokenService) StartPurge(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.PurgeExpired(ctx)
				if err != nil {
					log.Error().Err(err).Msg("token purge failed")
				} else if n > 0 {
					log.Debug().Int64("purged", n).Msg("expired tokens removed")
				}
			}
		}
	}()
}
