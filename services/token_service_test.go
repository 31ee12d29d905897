package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
)

func TestExchangeCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("end to end for a public PKCE client", func(t *testing.T) {
		client := env.registerPublicClient(t)
		scopes := []string{"openid", "patient/*.read", "offline_access"}
		code := env.issueCode(t, client.ID, "user-1", scopes)

		resp, err := env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, client.ID, "")
		require.NoError(t, err)
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.EqualValues(t, 300, resp.ExpiresIn)
		assert.Equal(t, scopes, resp.Scopes)
		assert.NotEmpty(t, resp.RefreshToken, "offline_access grants a refresh token")

		claims, err := env.tokens.Validate(ctx, resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.Equal(t, client.ID, claims.ClientID)
		assert.Equal(t, scopes, claims.Scopes)
		assert.Equal(t, testIssuer, claims.Issuer)

		grant, err := env.consents.GetGrant(ctx, "user-1", client.ID)
		require.NoError(t, err)
		assert.True(t, grant.Active())
		assert.True(t, grant.Covers(scopes))
	})

	t.Run("access token carries the signing kid", func(t *testing.T) {
		client := env.registerPublicClient(t)
		code := env.issueCode(t, client.ID, "user-1", nil)
		resp, err := env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, client.ID, "")
		require.NoError(t, err)

		parts := strings.Split(resp.AccessToken, ".")
		require.Len(t, parts, 3)
		var header struct {
			Alg string `json:"alg"`
			Kid string `json:"kid"`
		}
		raw, err := jwt.NewParser().DecodeSegment(parts[0])
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &header))
		active, err := env.keyMgr.Active()
		require.NoError(t, err)
		assert.Equal(t, "RS256", header.Alg)
		assert.Equal(t, active.Kid, header.Kid)
	})

	t.Run("no refresh token without offline_access", func(t *testing.T) {
		client := env.registerPublicClient(t)
		code := env.issueCode(t, client.ID, "user-1", []string{"patient/*.read"})
		resp, err := env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, client.ID, "")
		require.NoError(t, err)
		assert.Empty(t, resp.RefreshToken)
	})

	t.Run("code issued to one client never redeems for another", func(t *testing.T) {
		owner := env.registerPublicClient(t)
		thief, thiefSecret := env.registerConfidentialClient(t)

		code := env.issueCode(t, owner.ID, "user-1", nil)
		_, err := env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, thief.ID, thiefSecret)
		assert.ErrorIs(t, err, errors.ErrCodeInvalid)

		// The attempt burned the code for the rightful owner too.
		_, err = env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, owner.ID, "")
		assert.ErrorIs(t, err, errors.ErrCodeInvalid)
	})

	t.Run("confidential client must authenticate", func(t *testing.T) {
		client, secret := env.registerConfidentialClient(t)
		code := env.issueCode(t, client.ID, "svc", nil)

		_, err := env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, client.ID, "bad-secret")
		assert.ErrorIs(t, err, errors.ErrClientInvalid)

		// Client authentication failed before consumption, so the code survives.
		_, err = env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, client.ID, secret)
		assert.NoError(t, err)
	})
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.registerPublicClient(t)

	exchange := func(t *testing.T, subject string) *TokenResponse {
		t.Helper()
		code := env.issueCode(t, client.ID, subject, nil)
		resp, err := env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, client.ID, "")
		require.NoError(t, err)
		require.NotEmpty(t, resp.RefreshToken)
		return resp
	}

	t.Run("rotation issues a new pair and retires the old", func(t *testing.T) {
		first := exchange(t, "user-1")

		second, err := env.tokens.Refresh(ctx, first.RefreshToken, client.ID, "")
		require.NoError(t, err)
		assert.NotEmpty(t, second.AccessToken)
		assert.NotEmpty(t, second.RefreshToken)
		assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

		_, err = env.tokens.Validate(ctx, second.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("reuse after rotation revokes the whole family", func(t *testing.T) {
		first := exchange(t, "user-2")
		second, err := env.tokens.Refresh(ctx, first.RefreshToken, client.ID, "")
		require.NoError(t, err)

		// Replaying the rotated-out token is the theft signal.
		_, err = env.tokens.Refresh(ctx, first.RefreshToken, client.ID, "")
		require.ErrorIs(t, err, errors.ErrTokenInvalid)

		// The legitimate successor dies with the family.
		_, err = env.tokens.Refresh(ctx, second.RefreshToken, client.ID, "")
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})

	t.Run("wrong client is refused", func(t *testing.T) {
		first := exchange(t, "user-3")
		other, otherSecret := env.registerConfidentialClient(t)
		_, err := env.tokens.Refresh(ctx, first.RefreshToken, other.ID, otherSecret)
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})

	t.Run("revoked grant forces re-authorization", func(t *testing.T) {
		first := exchange(t, "user-4")
		require.NoError(t, env.consents.RevokeGrant(ctx, "user-4", client.ID))

		_, err := env.tokens.Refresh(ctx, first.RefreshToken, client.ID, "")
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})

	t.Run("unknown refresh value is refused", func(t *testing.T) {
		_, err := env.tokens.Refresh(ctx, "not-a-real-token", client.ID, "")
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.registerPublicClient(t)

	mint := func(t *testing.T) *TokenResponse {
		t.Helper()
		code := env.issueCode(t, client.ID, "user-1", nil)
		resp, err := env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, client.ID, "")
		require.NoError(t, err)
		return resp
	}

	t.Run("tampered token fails", func(t *testing.T) {
		resp := mint(t)
		tampered := resp.AccessToken[:len(resp.AccessToken)-4] + "AAAA"
		_, err := env.tokens.Validate(ctx, tampered)
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})

	t.Run("expired token fails", func(t *testing.T) {
		signer := env.tokens.signer
		past := time.Now().Add(-time.Hour)
		signed, err := signer.Sign(&domain.Token{
			ID:        "expired-jti",
			Subject:   "user-1",
			ClientID:  client.ID,
			IssuedAt:  past,
			ExpiresAt: past.Add(time.Minute),
		})
		require.NoError(t, err)
		_, err = env.tokens.Validate(ctx, signed)
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})

	t.Run("token survives key rotation within the retiring window", func(t *testing.T) {
		resp := mint(t)
		before, err := env.keyMgr.Active()
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		require.NoError(t, env.keyMgr.Rotate(ctx))
		after, err := env.keyMgr.Active()
		require.NoError(t, err)
		require.NotEqual(t, before.Kid, after.Kid)

		_, err = env.tokens.Validate(ctx, resp.AccessToken)
		assert.NoError(t, err, "retiring key still verifies")

		fresh := mint(t)
		_, err = env.tokens.Validate(ctx, fresh.AccessToken)
		assert.NoError(t, err, "new key signs and verifies")
	})
}

func TestRevoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.registerPublicClient(t)

	mint := func(t *testing.T, subject string) *TokenResponse {
		t.Helper()
		code := env.issueCode(t, client.ID, subject, nil)
		resp, err := env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, client.ID, "")
		require.NoError(t, err)
		return resp
	}

	t.Run("revoked access token fails validation immediately", func(t *testing.T) {
		resp := mint(t, "user-1")
		claims, err := env.tokens.Validate(ctx, resp.AccessToken)
		require.NoError(t, err)

		require.NoError(t, env.tokens.RevokeID(ctx, claims.ID))
		_, err = env.tokens.Validate(ctx, resp.AccessToken)
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})

	t.Run("revoking a refresh value denies future refreshes", func(t *testing.T) {
		resp := mint(t, "user-2")
		require.NoError(t, env.tokens.RevokeValue(ctx, resp.RefreshToken, client.ID, ""))

		_, err := env.tokens.Refresh(ctx, resp.RefreshToken, client.ID, "")
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)

		// Access tokens already issued ride out their own expiry.
		_, err = env.tokens.Validate(ctx, resp.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("revoking an access value via the endpoint shape", func(t *testing.T) {
		resp := mint(t, "user-3")
		require.NoError(t, env.tokens.RevokeValue(ctx, resp.AccessToken, client.ID, ""))
		_, err := env.tokens.Validate(ctx, resp.AccessToken)
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})

	t.Run("unknown token value is not an error", func(t *testing.T) {
		assert.NoError(t, env.tokens.RevokeValue(ctx, "garbage-value", client.ID, ""))
	})

	t.Run("another client's token is silently ignored", func(t *testing.T) {
		resp := mint(t, "user-4")
		other, otherSecret := env.registerConfidentialClient(t)

		require.NoError(t, env.tokens.RevokeValue(ctx, resp.RefreshToken, other.ID, otherSecret))
		_, err := env.tokens.Refresh(ctx, resp.RefreshToken, client.ID, "")
		assert.NoError(t, err, "foreign revocation attempt must not touch the token")
	})

	t.Run("revocation is idempotent", func(t *testing.T) {
		resp := mint(t, "user-5")
		claims, err := env.tokens.Validate(ctx, resp.AccessToken)
		require.NoError(t, err)
		require.NoError(t, env.tokens.RevokeID(ctx, claims.ID))
		assert.NoError(t, env.tokens.RevokeID(ctx, claims.ID))
	})
}

func TestPurgeExpiredTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.registerPublicClient(t)

	code := env.issueCode(t, client.ID, "user-1", nil)
	_, err := env.tokens.ExchangeCode(ctx, code, testVerifier, testRedirect, client.ID, "")
	require.NoError(t, err)

	n, err := env.tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.tokens.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	defer func() { env.tokens.now = time.Now }()

	n, err = env.tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "access and refresh records both purged")
}
