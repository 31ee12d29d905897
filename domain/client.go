package domain

import "time"

// ClientType categorizes the audience of a SMART application.
type ClientType string

const (
	ClientTypePatient  ClientType = "patient"
	ClientTypeProvider ClientType = "provider"
	ClientTypeSystem   ClientType = "system"
)

// AuthenticationType defines whether a client can hold a secret.
type AuthenticationType string

const (
	// AuthTypePublic clients cannot securely store secrets (mobile apps, SPAs).
	AuthTypePublic AuthenticationType = "public"
	// AuthTypeConfidential clients authenticate with a client secret.
	AuthTypeConfidential AuthenticationType = "confidential"
)

// LaunchType defines how a SMART application is launched.
type LaunchType string

const (
	LaunchStandalone LaunchType = "standalone"
	LaunchEHR        LaunchType = "ehr-launch"
)

// ClientStatus is the lifecycle state of a registered client.
type ClientStatus string

const (
	ClientStatusActive  ClientStatus = "active"
	ClientStatusRevoked ClientStatus = "revoked"
)

// PKCE challenge methods.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// Client represents a registered OAuth2 client application.
type Client struct {
	ID           string             `bson:"client_id"                    json:"client_id"`
	SecretHash   string             `bson:"client_secret_hash,omitempty" json:"-"`
	Name         string             `bson:"client_name"                  json:"client_name"`
	PublisherURL string             `bson:"publisher_url,omitempty"      json:"publisher_url,omitempty"`
	Type         ClientType         `bson:"client_type"                  json:"client_type"`
	AuthType     AuthenticationType `bson:"authentication_type"          json:"authentication_type"`
	LaunchType   LaunchType         `bson:"launch_type"                  json:"launch_type"`
	RedirectURIs []string           `bson:"redirect_uris"                json:"redirect_uris"`
	Scopes       []string           `bson:"scopes"                       json:"scopes"`
	PKCEEnabled  bool               `bson:"pkce_enabled"                 json:"pkce_enabled"`
	PKCEMethod   string             `bson:"pkce_method,omitempty"        json:"pkce_method,omitempty"`
	Status       ClientStatus       `bson:"status"                       json:"status"`
	CreatedBy    string             `bson:"created_by,omitempty"         json:"created_by,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"                   json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"                   json:"updated_at"`
	LastUsed     time.Time          `bson:"last_used,omitempty"          json:"last_used,omitempty"`
}

// IsConfidential reports whether the client authenticates with a secret.
func (c *Client) IsConfidential() bool {
	return c.AuthType == AuthTypeConfidential
}

// IsPublic reports whether the client is a public (secretless) client.
func (c *Client) IsPublic() bool {
	return c.AuthType == AuthTypePublic
}

// IsActive reports whether the client may participate in new flows.
func (c *Client) IsActive() bool {
	return c.Status == ClientStatusActive
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
// Matching is byte-exact: no wildcard, prefix, case or trailing-slash
// normalization, to keep open-redirect attacks out.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}
