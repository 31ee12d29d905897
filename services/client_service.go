package services

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
	"github.com/fhirhub/smartauth/internal/auth"
	"github.com/fhirhub/smartauth/internal/crypto"
)

const clientSecretBytes = 32

// ClientRegistration is the input to client registration.
type ClientRegistration struct {
	Name         string
	PublisherURL string
	Type         domain.ClientType
	AuthType     domain.AuthenticationType
	LaunchType   domain.LaunchType
	RedirectURIs []string
	Scopes       []string
	PKCEMethod   string
	// DisablePKCE opts a confidential client out of PKCE. Public clients
	// cannot opt out.
	DisablePKCE bool
	CreatedBy   string
}

// RegisteredClient is the registration result. Secret is the plaintext client
// secret for confidential clients, returned exactly once; only its bcrypt
// hash is stored.
type RegisteredClient struct {
	Client *domain.Client
	Secret string
}

// ClientService manages the client registry.
type ClientService struct {
	repo   domain.ClientRepository
	hasher auth.SecretHasher
	now    func() time.Time
}

func NewClientService(repo domain.ClientRepository, hasher auth.SecretHasher) *ClientService {
	return &ClientService{repo: repo, hasher: hasher, now: time.Now}
}

// Register validates and stores a new client, minting its identifier and, for
// confidential clients, its secret.
func (s *ClientService) Register(ctx context.Context, reg ClientRegistration) (*RegisteredClient, error) {
	if err := validateRegistration(reg); err != nil {
		return nil, err
	}

	now := s.now()
	method := reg.PKCEMethod
	if method == "" {
		method = domain.PKCEMethodS256
	}
	if reg.DisablePKCE {
		method = ""
	}
	client := &domain.Client{
		ID:           uuid.NewString(),
		Name:         reg.Name,
		PublisherURL: reg.PublisherURL,
		Type:         reg.Type,
		AuthType:     reg.AuthType,
		LaunchType:   reg.LaunchType,
		RedirectURIs: reg.RedirectURIs,
		Scopes:       reg.Scopes,
		PKCEEnabled:  !reg.DisablePKCE,
		PKCEMethod:   method,
		Status:       domain.ClientStatusActive,
		CreatedBy:    reg.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var secret string
	if client.IsConfidential() {
		var err error
		secret, err = crypto.RandomToken(clientSecretBytes)
		if err != nil {
			return nil, err
		}
		client.SecretHash, err = s.hasher.Hash(secret)
		if err != nil {
			return nil, err
		}
	}

	if err := s.repo.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	log.Info().
		Str("client_id", client.ID).
		Str("client_name", client.Name).
		Str("auth_type", string(client.AuthType)).
		Msg("client registered")
	return &RegisteredClient{Client: client, Secret: secret}, nil
}

func validateRegistration(reg ClientRegistration) error {
	if reg.Name == "" {
		return errors.NewInvalidRequest("client_name is required")
	}
	switch reg.AuthType {
	case domain.AuthTypePublic, domain.AuthTypeConfidential:
	default:
		return errors.NewInvalidRequest("authentication_type must be public or confidential")
	}
	switch reg.Type {
	case domain.ClientTypePatient, domain.ClientTypeProvider, domain.ClientTypeSystem:
	default:
		return errors.NewInvalidRequest("client_type must be patient, provider or system")
	}
	switch reg.LaunchType {
	case domain.LaunchStandalone, domain.LaunchEHR:
	default:
		return errors.NewInvalidRequest("launch_type must be standalone or ehr-launch")
	}
	if len(reg.RedirectURIs) == 0 {
		return errors.NewInvalidRequest("at least one redirect_uri is required")
	}
	for _, raw := range reg.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			return errors.NewInvalidRequest("redirect_uris must be absolute and fragment-free")
		}
	}
	if len(reg.Scopes) == 0 {
		return errors.NewInvalidRequest("at least one scope is required")
	}
	if reg.PKCEMethod != "" && reg.PKCEMethod != domain.PKCEMethodS256 && reg.PKCEMethod != domain.PKCEMethodPlain {
		return errors.NewInvalidRequest("pkce_method must be S256 or plain")
	}
	if reg.DisablePKCE && reg.AuthType == domain.AuthTypePublic {
		return errors.NewInvalidRequest("public clients must use PKCE")
	}
	return nil
}

// Get returns a client by identifier.
func (s *ClientService) Get(ctx context.Context, clientID string) (*domain.Client, error) {
	return s.repo.GetClient(ctx, clientID)
}

// List returns every registered client.
func (s *ClientService) List(ctx context.Context) ([]*domain.Client, error) {
	return s.repo.ListClients(ctx)
}

// Revoke marks a client revoked. Revocation only blocks new flows; tokens
// already issued run out their own lifetimes.
func (s *ClientService) Revoke(ctx context.Context, clientID string) error {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if !client.IsActive() {
		return nil
	}
	client.Status = domain.ClientStatusRevoked
	client.UpdatedAt = s.now()
	if err := s.repo.UpdateClient(ctx, client); err != nil {
		return err
	}
	log.Info().Str("client_id", clientID).Msg("client revoked")
	return nil
}

// Authenticate resolves and authenticates a client for the token endpoint.
// Confidential clients must present their secret; public clients must not
// need one. Unknown, revoked and wrong-secret clients are indistinguishable.
func (s *ClientService) Authenticate(ctx context.Context, clientID, secret string) (*domain.Client, error) {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrClientInvalid
		}
		return nil, err
	}
	if !client.IsActive() {
		return nil, errors.ErrClientInvalid
	}
	if client.IsConfidential() {
		if err := s.hasher.Verify(client.SecretHash, secret); err != nil {
			return nil, errors.ErrClientInvalid
		}
	} else if secret != "" {
		return nil, errors.ErrClientInvalid
	}
	return client, nil
}

// ValidateRedirect checks a redirect URI against the client's allow list.
func (s *ClientService) ValidateRedirect(client *domain.Client, uri string) error {
	if !client.HasRedirectURI(uri) {
		return errors.ErrClientInvalid
	}
	return nil
}

// GrantableScopes narrows a requested scope set to the intersection with the
// client's registration. Scopes outside the registration drop out silently;
// the granted set in the token response tells the app what it actually holds.
// An empty request means everything registered; an empty intersection is a
// denial.
func GrantableScopes(client *domain.Client, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return append([]string(nil), client.Scopes...), nil
	}
	registered := make(map[string]struct{}, len(client.Scopes))
	for _, sc := range client.Scopes {
		registered[sc] = struct{}{}
	}
	granted := make([]string, 0, len(requested))
	for _, sc := range requested {
		if _, ok := registered[sc]; ok {
			granted = append(granted, sc)
		}
	}
	if len(granted) == 0 {
		return nil, errors.ErrScopeDenied
	}
	return granted, nil
}

// TouchLastUsed records token issuance time on the client, best effort.
func (s *ClientService) TouchLastUsed(ctx context.Context, clientID string) {
	if err := s.repo.TouchClientLastUsed(ctx, clientID, s.now()); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("failed to update client last_used")
	}
}
