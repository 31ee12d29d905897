// Package keys manages the signing-key lifecycle: generation, rotation,
// retirement and the JWKS view of the verifiable key set.
package keys

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
	"github.com/fhirhub/smartauth/internal/crypto"
	"github.com/fhirhub/smartauth/internal/metrics"
)

const signingAlgorithm = "RS256"

// ActiveKey is the immutable snapshot handed to signers. A new snapshot is
// published atomically on every rotation; holders of an old snapshot keep a
// key that remains verifiable through its retiring window.
type ActiveKey struct {
	Kid       string
	Private   *rsa.PrivateKey
	CreatedAt time.Time
}

// ManagerConfig tunes the key lifecycle.
type ManagerConfig struct {
	// RotationInterval is how often the rotation loop fires.
	RotationInterval time.Duration
	// MinRotationInterval makes Rotate a no-op when the active key is younger
	// than this, so overlapping rotation triggers cannot churn the key set.
	MinRotationInterval time.Duration
	// RetiringWindow is how long a demoted key keeps verifying. It must be at
	// least the longest lifetime of any token the key could have signed.
	RetiringWindow time.Duration
}

// Manager owns the signing-key set. Reads of the active key are lock free;
// rotation is serialized behind a mutex.
type Manager struct {
	repo domain.SigningKeyRepository
	cfg  ManagerConfig
	now  func() time.Time

	active atomic.Pointer[ActiveKey]
	mu     sync.Mutex
}

// NewManager loads the persisted key set and ensures an active key exists,
// generating the first one on a fresh store. It returns an error rather than
// a manager that would sign nothing.
func NewManager(ctx context.Context, repo domain.SigningKeyRepository, cfg ManagerConfig) (*Manager, error) {
	if cfg.MinRotationInterval <= 0 {
		cfg.MinRotationInterval = time.Minute
	}
	if cfg.RetiringWindow <= 0 {
		cfg.RetiringWindow = 24 * time.Hour
	}
	m := &Manager{repo: repo, cfg: cfg, now: time.Now}

	if err := m.loadActive(ctx); err != nil {
		return nil, err
	}
	if m.active.Load() == nil {
		if err := m.Rotate(ctx); err != nil {
			return nil, fmt.Errorf("generate initial signing key: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) loadActive(ctx context.Context) error {
	actives, err := m.repo.ListKeys(ctx, domain.KeyStatusActive)
	if err != nil {
		return fmt.Errorf("list active keys: %w", err)
	}
	if len(actives) == 0 {
		return nil
	}
	// A crash between demote and promote can leave more than one active key.
	// The newest wins; the rest move to retiring so their tokens stay valid.
	newest := actives[0]
	for _, k := range actives[1:] {
		if k.CreatedAt.After(newest.CreatedAt) {
			newest = k
		}
	}
	now := m.now()
	for _, k := range actives {
		if k.Kid == newest.Kid {
			continue
		}
		if err := m.repo.UpdateKeyStatus(ctx, k.Kid, domain.KeyStatusRetiring, now.Add(m.cfg.RetiringWindow)); err != nil {
			return fmt.Errorf("demote stale active key %s: %w", k.Kid, err)
		}
		log.Warn().Str("kid", k.Kid).Msg("demoted stale active signing key")
	}

	priv, err := crypto.ParsePrivateKeyPEM(newest.PrivateKeyPEM)
	if err != nil {
		return fmt.Errorf("parse active key %s: %w", newest.Kid, err)
	}
	m.active.Store(&ActiveKey{Kid: newest.Kid, Private: priv, CreatedAt: newest.CreatedAt})
	return nil
}

// Active returns the current signing key snapshot.
func (m *Manager) Active() (*ActiveKey, error) {
	k := m.active.Load()
	if k == nil {
		return nil, errors.ErrKeyUnavailable
	}
	return k, nil
}

// Rotate generates a new key, promotes it and demotes the previous active key
// to retiring. Calling it again before MinRotationInterval has elapsed is a
// no-op, which makes concurrent triggers (timer plus admin endpoint) safe.
func (m *Manager) Rotate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	prev := m.active.Load()
	if prev != nil && now.Sub(prev.CreatedAt) < m.cfg.MinRotationInterval {
		log.Debug().Str("kid", prev.Kid).Msg("rotation skipped, active key too young")
		return nil
	}

	priv, err := crypto.GenerateRSAKey()
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}
	privPEM, err := crypto.EncodePrivateKeyPEM(priv)
	if err != nil {
		return err
	}
	pubPEM, err := crypto.EncodePublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return err
	}

	key := &domain.SigningKey{
		Kid:           uuid.NewString(),
		Algorithm:     signingAlgorithm,
		PublicKeyPEM:  pubPEM,
		PrivateKeyPEM: privPEM,
		Status:        domain.KeyStatusPending,
		CreatedAt:     now,
		NotBefore:     now,
	}
	if err := m.repo.SaveKey(ctx, key); err != nil {
		return fmt.Errorf("persist signing key: %w", err)
	}

	if prev != nil {
		if err := m.repo.UpdateKeyStatus(ctx, prev.Kid, domain.KeyStatusRetiring, now.Add(m.cfg.RetiringWindow)); err != nil {
			return fmt.Errorf("retire key %s: %w", prev.Kid, err)
		}
	}
	if err := m.repo.UpdateKeyStatus(ctx, key.Kid, domain.KeyStatusActive, time.Time{}); err != nil {
		return fmt.Errorf("promote key %s: %w", key.Kid, err)
	}

	m.active.Store(&ActiveKey{Kid: key.Kid, Private: priv, CreatedAt: now})
	metrics.KeyRotationsTotal.Inc()
	log.Info().Str("kid", key.Kid).Msg("signing key rotated")
	return nil
}

// Resolve returns the public key for a kid if that key may still verify
// signatures. Unknown, pending and retired kids all surface as ErrTokenInvalid
// so a caller cannot distinguish a forged kid from an aged-out one.
func (m *Manager) Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if a := m.active.Load(); a != nil && a.Kid == kid {
		return &a.Private.PublicKey, nil
	}
	key, err := m.repo.GetKey(ctx, kid)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrTokenInvalid
		}
		return nil, err
	}
	if !key.Verifiable(m.now().Add(-domain.ClockSkew)) {
		return nil, errors.ErrTokenInvalid
	}
	return crypto.ParsePublicKeyPEM(key.PublicKeyPEM)
}

// Sweep retires keys whose retiring window has closed and deletes keys that
// have sat retired for a full extra window. Safe to call from any instance.
func (m *Manager) Sweep(ctx context.Context) error {
	now := m.now()

	retiring, err := m.repo.ListKeys(ctx, domain.KeyStatusRetiring)
	if err != nil {
		return err
	}
	for _, k := range retiring {
		if !k.NotAfter.IsZero() && now.After(k.NotAfter.Add(domain.ClockSkew)) {
			if err := m.repo.UpdateKeyStatus(ctx, k.Kid, domain.KeyStatusRetired, k.NotAfter); err != nil {
				return err
			}
			log.Info().Str("kid", k.Kid).Msg("signing key retired")
		}
	}

	retired, err := m.repo.ListKeys(ctx, domain.KeyStatusRetired)
	if err != nil {
		return err
	}
	for _, k := range retired {
		if !k.NotAfter.IsZero() && now.After(k.NotAfter.Add(m.cfg.RetiringWindow)) {
			if err := m.repo.DeleteKey(ctx, k.Kid); err != nil {
				return err
			}
			log.Info().Str("kid", k.Kid).Msg("signing key purged")
		}
	}
	return nil
}

// StartRotation runs the rotation and sweep loop until ctx is cancelled.
func (m *Manager) StartRotation(ctx context.Context) {
	if m.cfg.RotationInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.RotationInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Rotate(ctx); err != nil {
					log.Error().Err(err).Msg("scheduled key rotation failed")
				}
				if err := m.Sweep(ctx); err != nil {
					log.Error().Err(err).Msg("key sweep failed")
				}
			}
		}
	}()
}
