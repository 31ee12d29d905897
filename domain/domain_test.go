package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHasRedirectURI(t *testing.T) {
	c := &Client{RedirectURIs: []string{"https://app.example.org/cb"}}

	assert.True(t, c.HasRedirectURI("https://app.example.org/cb"))
	for _, uri := range []string{
		"https://app.example.org/cb/",
		"https://APP.example.org/cb",
		"https://app.example.org/cb?x=1",
		"https://app.example.org",
	} {
		assert.False(t, c.HasRedirectURI(uri), uri)
	}
}

func TestSigningKeyVerifiable(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		key  SigningKey
		want bool
	}{
		{"active verifies", SigningKey{Status: KeyStatusActive}, true},
		{"retiring inside window verifies", SigningKey{Status: KeyStatusRetiring, NotAfter: now.Add(time.Hour)}, true},
		{"retiring past window does not", SigningKey{Status: KeyStatusRetiring, NotAfter: now.Add(-time.Second)}, false},
		{"pending does not", SigningKey{Status: KeyStatusPending}, false},
		{"retired does not", SigningKey{Status: KeyStatusRetired, NotAfter: now.Add(time.Hour)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.key.Verifiable(now))
		})
	}
}

func TestConsentCovers(t *testing.T) {
	rec := &ConsentRecord{GrantedScopes: []string{"openid", "patient/*.read"}}

	assert.True(t, rec.Covers(nil))
	assert.True(t, rec.Covers([]string{"patient/*.read"}))
	assert.False(t, rec.Covers([]string{"patient/*.read", "offline_access"}))
}

func TestDefaultScopesForRole(t *testing.T) {
	scopes := DefaultScopesForRole("patient")
	assert.Contains(t, scopes, "patient/*.read")

	// Callers get a copy, not the table's slice.
	scopes[0] = "mutated"
	assert.NotContains(t, DefaultScopesForRole("patient"), "mutated")

	assert.Equal(t, []string{"openid"}, DefaultScopesForRole("no-such-role"))
}
