package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
	"github.com/fhirhub/smartauth/internal/crypto"
	"github.com/fhirhub/smartauth/internal/metrics"
)

const authCodeBytes = 32

// AuthCodeService issues and consumes single-use authorization codes.
type AuthCodeService struct {
	codes   domain.AuthCodeRepository
	clients *ClientService
	ttl     time.Duration
	now     func() time.Time
}

func NewAuthCodeService(codes domain.AuthCodeRepository, clients *ClientService, ttl time.Duration) *AuthCodeService {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &AuthCodeService{codes: codes, clients: clients, ttl: ttl, now: time.Now}
}

// Issue validates the authorization request against the client's registration
// and mints a short-lived opaque code bound to subject, redirect URI, granted
// scopes and the PKCE challenge.
func (s *AuthCodeService) Issue(ctx context.Context, clientID, subject, redirectURI string, scopes []string, challenge, method string) (string, error) {
	client, err := s.clients.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", errors.ErrClientInvalid
		}
		return "", err
	}
	if !client.IsActive() {
		return "", errors.ErrClientInvalid
	}
	if err := s.clients.ValidateRedirect(client, redirectURI); err != nil {
		return "", err
	}
	granted, err := GrantableScopes(client, scopes)
	if err != nil {
		return "", err
	}

	if client.PKCEEnabled {
		if challenge == "" {
			return "", errors.NewInvalidRequest("code_challenge is required")
		}
		if method == "" {
			method = domain.PKCEMethodS256
		}
		// A client registered for S256 never accepts a plain downgrade.
		if method != client.PKCEMethod && client.PKCEMethod == domain.PKCEMethodS256 {
			return "", errors.NewInvalidRequest("code_challenge_method not allowed for this client")
		}
		if method != domain.PKCEMethodS256 && method != domain.PKCEMethodPlain {
			return "", errors.NewInvalidRequest("unsupported code_challenge_method")
		}
	}

	value, err := crypto.RandomToken(authCodeBytes)
	if err != nil {
		return "", err
	}
	now := s.now()
	rec := &domain.AuthorizationCode{
		Code:                value,
		ClientID:            client.ID,
		Subject:             subject,
		RedirectURI:         redirectURI,
		Scopes:              granted,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		ExpiresAt:           now.Add(s.ttl),
		CreatedAt:           now,
	}
	if err := s.codes.SaveAuthCode(ctx, rec); err != nil {
		return "", err
	}
	metrics.CodesIssuedTotal.Inc()
	log.Debug().Str("client_id", client.ID).Str("subject", subject).Msg("authorization code issued")
	return value, nil
}

// Consume redeems a code at most once. The store flips the consumed flag
// atomically before any other check runs, so a concurrent racer loses even if
// this call goes on to fail PKCE; a failed exchange burns the code. All
// failures collapse into ErrCodeInvalid.
func (s *AuthCodeService) Consume(ctx context.Context, code, redirectURI, verifier string) (*domain.AuthorizationCode, error) {
	rec, err := s.codes.ConsumeAuthCode(ctx, code)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrCodeInvalid
		}
		return nil, err
	}
	if rec.Expired(s.now()) {
		return nil, errors.ErrCodeInvalid
	}
	if rec.RedirectURI != redirectURI {
		return nil, errors.ErrCodeInvalid
	}
	if rec.CodeChallenge != "" {
		if err := VerifyPKCE(rec.CodeChallengeMethod, rec.CodeChallenge, verifier); err != nil {
			return nil, err
		}
	}
	metrics.CodesConsumedTotal.Inc()
	return rec, nil
}

// PurgeExpired deletes codes past their TTL. Advisory housekeeping only;
// Consume re-checks expiry regardless.
func (s *AuthCodeService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.codes.DeleteExpiredAuthCodes(ctx, s.now())
}

// StartPurge runs the purge loop until ctx is cancelled.
func (s *AuthCodeService) StartPurge(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
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
					log.Error().Err(err).Msg("auth code purge failed")
				} else if n > 0 {
					log.Debug().Int64("purged", n).Msg("expired auth codes removed")
				}
			}
		}
	}()
}
