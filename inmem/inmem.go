// Package inmem provides mutex-guarded in-memory implementations of the
// domain repositories. They back the development server and the test suites;
// production deployments use the mongodb package.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
)

// ClientRepository is an in-memory domain.ClientRepository.
type ClientRepository struct {
	mu      sync.RWMutex
	clients map[string]domain.Client
}

func NewClientRepository() *ClientRepository {
	return &ClientRepository{clients: make(map[string]domain.Client)}
}

func (r *ClientRepository) CreateClient(_ context.Context, client *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[client.ID]; ok {
		return errors.ErrDuplicate
	}
	r.clients[client.ID] = *client
	return nil
}

func (r *ClientRepository) GetClient(_ context.Context, clientID string) (*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &c, nil
}

func (r *ClientRepository) UpdateClient(_ context.Context, client *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[client.ID]; !ok {
		return errors.ErrNotFound
	}
	r.clients[client.ID] = *client
	return nil
}

func (r *ClientRepository) TouchClientLastUsed(_ context.Context, clientID string, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return errors.ErrNotFound
	}
	c.LastUsed = when
	r.clients[clientID] = c
	return nil
}

func (r *ClientRepository) ListClients(_ context.Context) ([]*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Client, 0, len(r.clients))
	for _, c := range r.clients {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AuthCodeRepository is an in-memory domain.AuthCodeRepository.
type AuthCodeRepository struct {
	mu    sync.Mutex
	codes map[string]domain.AuthorizationCode
}

func NewAuthCodeRepository() *AuthCodeRepository {
	return &AuthCodeRepository{codes: make(map[string]domain.AuthorizationCode)}
}

func (r *AuthCodeRepository) SaveAuthCode(_ context.Context, code *domain.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[code.Code]; ok {
		return errors.ErrDuplicate
	}
	r.codes[code.Code] = *code
	return nil
}

func (r *AuthCodeRepository) ConsumeAuthCode(_ context.Context, code string) (*domain.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[code]
	if !ok || c.Consumed {
		return nil, errors.ErrNotFound
	}
	before := c
	c.Consumed = true
	r.codes[code] = c
	return &before, nil
}

func (r *AuthCodeRepository) DeleteExpiredAuthCodes(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, c := range r.codes {
		if c.ExpiresAt.Before(olderThan) {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}

// TokenRepository is an in-memory domain.TokenRepository.
type TokenRepository struct {
	mu     sync.Mutex
	tokens map[string]domain.Token
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{tokens: make(map[string]domain.Token)}
}

func (r *TokenRepository) StoreToken(_ context.Context, token *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token.ID]; ok {
		return errors.ErrDuplicate
	}
	r.tokens[token.ID] = *token
	return nil
}

func (r *TokenRepository) GetToken(_ context.Context, id string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &t, nil
}

func (r *TokenRepository) GetRefreshTokenByHash(_ context.Context, valueHash string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.Kind == domain.TokenKindRefresh && t.ValueHash == valueHash {
			t := t
			return &t, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (r *TokenRepository) RevokeToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return errors.ErrNotFound
	}
	t.Revoked = true
	r.tokens[id] = t
	return nil
}

func (r *TokenRepository) RevokeTokenFamily(_ context.Context, familyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.FamilyID == familyID {
			t.Revoked = true
			r.tokens[id] = t
		}
	}
	return nil
}

func (r *TokenRepository) RevokeSubjectClientTokens(_ context.Context, subject, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.Subject == subject && t.ClientID == clientID {
			t.Revoked = true
			r.tokens[id] = t
		}
	}
	return nil
}

func (r *TokenRepository) DeleteExpiredTokens(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.ExpiresAt.Before(olderThan) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

// SigningKeyRepository is an in-memory domain.SigningKeyRepository.
type SigningKeyRepository struct {
	mu   sync.Mutex
	keys map[string]domain.SigningKey
}

func NewSigningKeyRepository() *SigningKeyRepository {
	return &SigningKeyRepository{keys: make(map[string]domain.SigningKey)}
}

func (r *SigningKeyRepository) SaveKey(_ context.Context, key *domain.SigningKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key.Kid]; ok {
		return errors.ErrDuplicate
	}
	r.keys[key.Kid] = *key
	return nil
}

func (r *SigningKeyRepository) GetKey(_ context.Context, kid string) (*domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[kid]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &k, nil
}

func (r *SigningKeyRepository) UpdateKeyStatus(_ context.Context, kid string, status domain.KeyStatus, notAfter time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[kid]
	if !ok {
		return errors.ErrNotFound
	}
	k.Status = status
	k.NotAfter = notAfter
	r.keys[kid] = k
	return nil
}

func (r *SigningKeyRepository) ListKeys(_ context.Context, statuses ...domain.KeyStatus) ([]*domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SigningKey
	for _, k := range r.keys {
		if len(statuses) == 0 || containsStatus(statuses, k.Status) {
			k := k
			out = append(out, &k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *SigningKeyRepository) DeleteKey(_ context.Context, kid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[kid]; !ok {
		return errors.ErrNotFound
	}
	delete(r.keys, kid)
	return nil
}

func containsStatus(statuses []domain.KeyStatus, s domain.KeyStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// ConsentRepository is an in-memory domain.ConsentRepository.
type ConsentRepository struct {
	mu      sync.Mutex
	records map[string]domain.ConsentRecord
}

func NewConsentRepository() *ConsentRepository {
	return &ConsentRepository{records: make(map[string]domain.ConsentRecord)}
}

func consentKey(subject, clientID string) string {
	return subject + "\x00" + clientID
}

func (r *ConsentRepository) UpsertConsent(_ context.Context, record *domain.ConsentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := consentKey(record.Subject, record.ClientID)
	existing, ok := r.records[key]
	if !ok || existing.RevokedAt != nil {
		r.records[key] = *record
		return nil
	}
	existing.GrantedScopes = mergeScopes(existing.GrantedScopes, record.GrantedScopes)
	existing.GrantedAt = record.GrantedAt
	r.records[key] = existing
	return nil
}

func (r *ConsentRepository) GetConsent(_ context.Context, subject, clientID string) (*domain.ConsentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[consentKey(subject, clientID)]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &rec, nil
}

func (r *ConsentRepository) RevokeConsent(_ context.Context, subject, clientID string, when time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := consentKey(subject, clientID)
	rec, ok := r.records[key]
	if !ok || rec.RevokedAt != nil {
		return errors.ErrNotFound
	}
	rec.RevokedAt = &when
	r.records[key] = rec
	return nil
}

func mergeScopes(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, s := range append(append([]string{}, existing...), added...) {
		if !seen[s] {
			seen[s] = true
			merged = append(merged, s)
		}
	}
	sort.Strings(merged)
	return merged
}

// UserRepository is an in-memory domain.UserRepository.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]domain.User)}
}

func (r *UserRepository) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok {
		return errors.ErrDuplicate
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return errors.ErrDuplicate
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r *UserRepository) GetUser(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, errors.ErrNotFound
}

var (
	_ domain.ClientRepository     = (*ClientRepository)(nil)
	_ domain.AuthCodeRepository   = (*AuthCodeRepository)(nil)
	_ domain.TokenRepository      = (*TokenRepository)(nil)
	_ domain.SigningKeyRepository = (*SigningKeyRepository)(nil)
	_ domain.ConsentRepository    = (*ConsentRepository)(nil)
	_ domain.UserRepository       = (*UserRepository)(nil)
)
