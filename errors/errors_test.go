package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToOAuth2Error(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"client invalid", ErrClientInvalid, CodeInvalidClient},
		{"not found maps to client denial", ErrNotFound, CodeInvalidClient},
		{"code invalid", ErrCodeInvalid, CodeInvalidGrant},
		{"token invalid", ErrTokenInvalid, CodeInvalidGrant},
		{"scope denied", ErrScopeDenied, CodeInvalidScope},
		{"key unavailable is a server fault", ErrKeyUnavailable, CodeServerError},
		{"arbitrary errors stay generic", fmt.Errorf("boom"), CodeServerError},
		{"wrapped errors unwrap", fmt.Errorf("consume: %w", ErrCodeInvalid), CodeInvalidGrant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, ToOAuth2Error(tc.err).Code)
		})
	}
}

func TestOAuth2ErrorCollapsesCauses(t *testing.T) {
	// Different internal failures must be byte-identical on the wire.
	assert.Equal(t, ToOAuth2Error(ErrCodeInvalid), ToOAuth2Error(ErrTokenInvalid))
	assert.Equal(t, ToOAuth2Error(ErrClientInvalid), ToOAuth2Error(ErrNotFound))
}
