package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fhirhub/smartauth/domain"
)

// ConsentService maintains the ledger of scopes a user has granted each
// client.
type ConsentService struct {
	consents domain.ConsentRepository
	tokens   domain.TokenRepository
	now      func() time.Time
}

func NewConsentService(consents domain.ConsentRepository, tokens domain.TokenRepository) *ConsentService {
	return &ConsentService{consents: consents, tokens: tokens, now: time.Now}
}

// RecordGrant records or widens the grant for a (subject, client) pair.
// Scopes merge into an existing active grant; a revoked grant is replaced
// wholesale, starting a fresh audit entry.
func (s *ConsentService) RecordGrant(ctx context.Context, subject, clientID string, scopes []string) error {
	return s.consents.UpsertConsent(ctx, &domain.ConsentRecord{
		Subject:       subject,
		ClientID:      clientID,
		GrantedScopes: scopes,
		GrantedAt:     s.now(),
	})
}

// GetGrant returns the grant for a pair, revoked or not. Callers check
// Active themselves; a revoked record still matters for audit.
func (s *ConsentService) GetGrant(ctx context.Context, subject, clientID string) (*domain.ConsentRecord, error) {
	return s.consents.GetConsent(ctx, subject, clientID)
}

// RevokeGrant withdraws the user's consent and cascades to every outstanding
// refresh token of the pair, so no silent refresh survives the withdrawal.
// Outstanding access tokens run out their own short lifetimes.
func (s *ConsentService) RevokeGrant(ctx context.Context, subject, clientID string) error {
	if err := s.consents.RevokeConsent(ctx, subject, clientID, s.now()); err != nil {
		return err
	}
	if err := s.tokens.RevokeSubjectClientTokens(ctx, subject, clientID); err != nil {
		return err
	}
	log.Info().Str("subject", subject).Str("client_id", clientID).Msg("consent revoked, refresh tokens cascaded")
	return nil
}
