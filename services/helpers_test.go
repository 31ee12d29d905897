package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fhirhub/smartauth/cache"
	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/inmem"
	"github.com/fhirhub/smartauth/internal/auth"
	"github.com/fhirhub/smartauth/keys"
)

const (
	testIssuer   = "https://auth.example.org"
	testVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testRedirect = "https://app.example.org/callback"
)

// testEnv wires every service over in-memory storage.
type testEnv struct {
	clients  *ClientService
	codes    *AuthCodeService
	consents *ConsentService
	tokens   *TokenService
	keyMgr   *keys.Manager

	tokenRepo *inmem.TokenRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	km, err := keys.NewManager(context.Background(), inmem.NewSigningKeyRepository(), keys.ManagerConfig{
		MinRotationInterval: time.Millisecond,
		RetiringWindow:      time.Hour,
	})
	require.NoError(t, err)

	tokenRepo := inmem.NewTokenRepository()
	clients := NewClientService(inmem.NewClientRepository(), auth.NewBcryptSecretHasher(bcryptTestCost))
	codes := NewAuthCodeService(inmem.NewAuthCodeRepository(), clients, 90*time.Second)
	consents := NewConsentService(inmem.NewConsentRepository(), tokenRepo)
	revoked := cache.NewMemoryRevocationList()
	t.Cleanup(func() { _ = revoked.Close() })

	tokens := NewTokenService(tokenRepo, clients, codes, consents, NewTokenSigner(km, testIssuer), revoked, TokenServiceConfig{
		AccessTokenTTL:  5 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	})
	return &testEnv{
		clients:   clients,
		codes:     codes,
		consents:  consents,
		tokens:    tokens,
		keyMgr:    km,
		tokenRepo: tokenRepo,
	}
}

// bcryptTestCost keeps hashing fast in tests.
const bcryptTestCost = 4

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (e *testEnv) registerPublicClient(t *testing.T, scopes ...string) *domain.Client {
	t.Helper()
	if len(scopes) == 0 {
		scopes = []string{"openid", "patient/*.read", "offline_access"}
	}
	reg, err := e.clients.Register(context.Background(), ClientRegistration{
		Name:         "Test SMART App",
		Type:         domain.ClientTypePatient,
		AuthType:     domain.AuthTypePublic,
		LaunchType:   domain.LaunchStandalone,
		RedirectURIs: []string{testRedirect},
		Scopes:       scopes,
	})
	require.NoError(t, err)
	return reg.Client
}

func (e *testEnv) registerConfidentialClient(t *testing.T, scopes ...string) (*domain.Client, string) {
	t.Helper()
	if len(scopes) == 0 {
		scopes = []string{"system/*.read", "offline_access"}
	}
	reg, err := e.clients.Register(context.Background(), ClientRegistration{
		Name:         "Backend Service",
		Type:         domain.ClientTypeSystem,
		AuthType:     domain.AuthTypeConfidential,
		LaunchType:   domain.LaunchStandalone,
		RedirectURIs: []string{testRedirect},
		Scopes:       scopes,
	})
	require.NoError(t, err)
	return reg.Client, reg.Secret
}

// issueCode runs the authorize leg for a subject with an S256 challenge.
func (e *testEnv) issueCode(t *testing.T, clientID, subject string, scopes []string) string {
	t.Helper()
	code, err := e.codes.Issue(context.Background(), clientID, subject, testRedirect, scopes, s256Challenge(testVerifier), domain.PKCEMethodS256)
	require.NoError(t, err)
	return code
}
