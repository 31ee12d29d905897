package domain

import "time"

// AuthorizationCode represents a single-use OAuth 2.0 authorization code.
// Codes are exclusively owned by the code store: issued once, consumed at most
// once, and never reused across exchanges.
type AuthorizationCode struct {
	Code                string    `bson:"code"                  json:"code"`
	ClientID            string    `bson:"client_id"             json:"client_id"`
	Subject             string    `bson:"subject"               json:"subject"`
	RedirectURI         string    `bson:"redirect_uri"          json:"redirect_uri"`
	Scopes              []string  `bson:"scopes"                json:"scopes"`
	CodeChallenge       string    `bson:"code_challenge,omitempty"        json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
	ExpiresAt           time.Time `bson:"expires_at"            json:"expires_at"`
	Consumed            bool      `bson:"consumed"              json:"consumed"`
	CreatedAt           time.Time `bson:"created_at"            json:"created_at"`
}

// Expired reports whether the code is past its TTL at the given instant.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
