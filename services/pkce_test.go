package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
)

func TestVerifyPKCE(t *testing.T) {
	t.Run("S256 accepts the matching verifier", func(t *testing.T) {
		assert.NoError(t, VerifyPKCE(domain.PKCEMethodS256, s256Challenge(testVerifier), testVerifier))
	})

	t.Run("S256 rejects any other verifier", func(t *testing.T) {
		other := strings.Repeat("x", 43)
		err := VerifyPKCE(domain.PKCEMethodS256, s256Challenge(testVerifier), other)
		assert.ErrorIs(t, err, errors.ErrCodeInvalid)
	})

	t.Run("plain compares the raw values", func(t *testing.T) {
		v := strings.Repeat("a", 50)
		assert.NoError(t, VerifyPKCE(domain.PKCEMethodPlain, v, v))
		assert.ErrorIs(t, VerifyPKCE(domain.PKCEMethodPlain, v, strings.Repeat("b", 50)), errors.ErrCodeInvalid)
	})

	t.Run("verifier length bounds", func(t *testing.T) {
		short := strings.Repeat("a", 42)
		long := strings.Repeat("a", 129)
		assert.ErrorIs(t, VerifyPKCE(domain.PKCEMethodPlain, short, short), errors.ErrCodeInvalid)
		assert.ErrorIs(t, VerifyPKCE(domain.PKCEMethodPlain, long, long), errors.ErrCodeInvalid)
	})

	t.Run("unknown method fails closed", func(t *testing.T) {
		err := VerifyPKCE("S512", s256Challenge(testVerifier), testVerifier)
		assert.ErrorIs(t, err, errors.ErrCodeInvalid)
	})
}
