package services

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/fhirhub/smartauth/domain"
	"github.com/fhirhub/smartauth/errors"
)

// RFC 7636 bounds on the code verifier.
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// VerifyPKCE checks a code verifier against the challenge bound to an
// authorization code. All comparisons are constant time and every failure
// surfaces as the same error kind, so the token endpoint leaks nothing about
// which part of the check failed.
func VerifyPKCE(method, challenge, verifier string) error {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return errors.ErrCodeInvalid
	}
	switch method {
	case domain.PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		derived := base64.RawURLEncoding.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) != 1 {
			return errors.ErrCodeInvalid
		}
	case domain.PKCEMethodPlain:
		if subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) != 1 {
			return errors.ErrCodeInvalid
		}
	default:
		return errors.ErrCodeInvalid
	}
	return nil
}
