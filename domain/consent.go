package domain

import "time"

// ConsentRecord captures the scopes a user has granted a client. It allows
// refresh flows to proceed without re-prompting and serves as the audit trail
// for scope grants.
type ConsentRecord struct {
	Subject       string     `bson:"subject"              json:"subject"`
	ClientID      string     `bson:"client_id"            json:"client_id"`
	GrantedScopes []string   `bson:"granted_scopes"       json:"granted_scopes"`
	GrantedAt     time.Time  `bson:"granted_at"           json:"granted_at"`
	RevokedAt     *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
}

// Active reports whether the grant has not been revoked.
func (c *ConsentRecord) Active() bool {
	return c.RevokedAt == nil
}

// Covers reports whether every requested scope is contained in the grant.
func (c *ConsentRecord) Covers(scopes []string) bool {
	granted := make(map[string]struct{}, len(c.GrantedScopes))
	for _, s := range c.GrantedScopes {
		granted[s] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}
