package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
)

func TestRegisterClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("public client gets no secret", func(t *testing.T) {
		client := env.registerPublicClient(t)
		assert.NotEmpty(t, client.ID)
		assert.Empty(t, client.SecretHash)
		assert.True(t, client.PKCEEnabled)
		assert.Equal(t, domain.PKCEMethodS256, client.PKCEMethod)
	})

	t.Run("confidential client gets a secret exactly once", func(t *testing.T) {
		client, secret := env.registerConfidentialClient(t)
		assert.NotEmpty(t, secret)
		assert.NotEmpty(t, client.SecretHash)
		assert.NotContains(t, client.SecretHash, secret)

		fetched, err := env.clients.Get(ctx, client.ID)
		require.NoError(t, err)
		assert.Equal(t, client.SecretHash, fetched.SecretHash)
	})

	t.Run("empty redirect set is refused", func(t *testing.T) {
		_, err := env.clients.Register(ctx, ClientRegistration{
			Name:       "No Redirects",
			Type:       domain.ClientTypePatient,
			AuthType:   domain.AuthTypePublic,
			LaunchType: domain.LaunchStandalone,
			Scopes:     []string{"openid"},
		})
		require.Error(t, err)
		var oerr *errors.OAuth2Error
		require.ErrorAs(t, err, &oerr)
		assert.Equal(t, errors.CodeInvalidRequest, oerr.Code)
	})

	t.Run("public client cannot disable PKCE", func(t *testing.T) {
		_, err := env.clients.Register(ctx, ClientRegistration{
			Name:         "No PKCE",
			Type:         domain.ClientTypePatient,
			AuthType:     domain.AuthTypePublic,
			LaunchType:   domain.LaunchStandalone,
			RedirectURIs: []string{testRedirect},
			Scopes:       []string{"openid"},
			DisablePKCE:  true,
		})
		assert.Error(t, err)
	})

	t.Run("redirect URIs must be absolute and fragment-free", func(t *testing.T) {
		for _, uri := range []string{"/relative/path", "https://app.example.org/cb#frag"} {
			_, err := env.clients.Register(ctx, ClientRegistration{
				Name:         "Bad Redirect",
				Type:         domain.ClientTypePatient,
				AuthType:     domain.AuthTypePublic,
				LaunchType:   domain.LaunchStandalone,
				RedirectURIs: []string{uri},
				Scopes:       []string{"openid"},
			})
			assert.Error(t, err, uri)
		}
	})
}

func TestAuthenticateClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	public := env.registerPublicClient(t)
	confidential, secret := env.registerConfidentialClient(t)

	t.Run("confidential with correct secret", func(t *testing.T) {
		got, err := env.clients.Authenticate(ctx, confidential.ID, secret)
		require.NoError(t, err)
		assert.Equal(t, confidential.ID, got.ID)
	})

	t.Run("confidential with wrong secret", func(t *testing.T) {
		_, err := env.clients.Authenticate(ctx, confidential.ID, "wrong")
		assert.ErrorIs(t, err, errors.ErrClientInvalid)
	})

	t.Run("public presents no secret", func(t *testing.T) {
		_, err := env.clients.Authenticate(ctx, public.ID, "")
		assert.NoError(t, err)

		_, err = env.clients.Authenticate(ctx, public.ID, "unexpected")
		assert.ErrorIs(t, err, errors.ErrClientInvalid)
	})

	t.Run("unknown and revoked clients are indistinguishable", func(t *testing.T) {
		_, unknownErr := env.clients.Authenticate(ctx, "no-such-client", "")
		assert.ErrorIs(t, unknownErr, errors.ErrClientInvalid)

		require.NoError(t, env.clients.Revoke(ctx, public.ID))
		_, revokedErr := env.clients.Authenticate(ctx, public.ID, "")
		assert.ErrorIs(t, revokedErr, errors.ErrClientInvalid)

		assert.Equal(t, errors.ToOAuth2Error(unknownErr), errors.ToOAuth2Error(revokedErr))
	})
}

func TestValidateRedirect(t *testing.T) {
	env := newTestEnv(t)
	client := env.registerPublicClient(t)

	cases := map[string]bool{
		testRedirect:                                 true,
		testRedirect + "/":                           false,
		"https://APP.example.org/callback":           false,
		testRedirect + "?extra=1":                    false,
		"https://evil.example.org/callback":          false,
		"https://app.example.org/callback/../ohno":   false,
	}
	for uri, ok := range cases {
		err := env.clients.ValidateRedirect(client, uri)
		if ok {
			assert.NoError(t, err, uri)
		} else {
			assert.ErrorIs(t, err, errors.ErrClientInvalid, uri)
		}
	}
}

func TestGrantableScopes(t *testing.T) {
	client := &domain.Client{Scopes: []string{"patient/*.read", "openid"}}

	t.Run("narrows to the registered intersection", func(t *testing.T) {
		granted, err := GrantableScopes(client, []string{"patient/*.read", "system/*.write"})
		require.NoError(t, err)
		assert.Equal(t, []string{"patient/*.read"}, granted)
	})

	t.Run("empty request grants everything registered", func(t *testing.T) {
		granted, err := GrantableScopes(client, nil)
		require.NoError(t, err)
		assert.Equal(t, client.Scopes, granted)
	})

	t.Run("empty intersection is denied", func(t *testing.T) {
		_, err := GrantableScopes(client, []string{"system/*.write"})
		assert.ErrorIs(t, err, errors.ErrScopeDenied)
	})
}
