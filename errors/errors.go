// Package errors defines the error kinds of the authorization core and their
// mapping onto RFC 6749 wire errors at the protocol boundary.
package errors

import (
	"errors"
	"fmt"
)

// Internal error kinds. Callers branch on these with errors.Is; the HTTP
// boundary collapses them into generic wire errors so that external callers
// cannot tell which specific check failed.
var (
	// ErrClientInvalid covers unknown-after-authentication, revoked and
	// mis-authenticated clients, and redirect URIs not on the allow list.
	ErrClientInvalid = errors.New("client invalid")
	// ErrCodeInvalid covers expired, consumed and unknown authorization codes,
	// redirect mismatches and PKCE failures. One kind by design: an attacker
	// probing the token endpoint must not learn which check failed.
	ErrCodeInvalid = errors.New("authorization code invalid")
	// ErrScopeDenied is returned when a requested scope set has an empty
	// intersection with what the client or grant allows.
	ErrScopeDenied = errors.New("scope denied")
	// ErrTokenInvalid covers bad signatures, expiry, revocation and unknown kids.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrKeyUnavailable means no active signing key exists. This is a service
	// health fault, not a per-request error.
	ErrKeyUnavailable = errors.New("no active signing key")
	// ErrNotFound is the storage-level miss. Protocol code maps it into one of
	// the kinds above before it reaches a caller.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is the storage-level uniqueness violation.
	ErrDuplicate = errors.New("already exists")
)

// Is reports whether any error in err's chain matches target. Re-exported so
// importers of this package do not also need the standard library errors.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain matching target.
func As(err error, target any) bool { return errors.As(err, target) }

// Standard OAuth2 wire error codes.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidClient  = "invalid_client"
	CodeInvalidGrant   = "invalid_grant"
	CodeInvalidScope   = "invalid_scope"
	CodeServerError    = "server_error"
)

// OAuth2Error is the externally visible error shape (RFC 6749 §5.2).
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: CodeInvalidRequest, Description: description}
}

func NewInvalidClient() *OAuth2Error {
	return &OAuth2Error{Code: CodeInvalidClient, Description: "client authentication failed"}
}

func NewInvalidGrant() *OAuth2Error {
	return &OAuth2Error{Code: CodeInvalidGrant, Description: "the provided grant is invalid"}
}

func NewInvalidScope() *OAuth2Error {
	return &OAuth2Error{Code: CodeInvalidScope, Description: "the requested scope is not permitted"}
}

func NewServerError() *OAuth2Error {
	return &OAuth2Error{Code: CodeServerError, Description: "internal error"}
}

// ToOAuth2Error maps an internal error onto its wire representation. The
// mapping is deliberately lossy: every code/token failure surfaces as the same
// generic grant error, and unknown clients are indistinguishable from revoked
// ones.
func ToOAuth2Error(err error) *OAuth2Error {
	switch {
	case errors.Is(err, ErrClientInvalid), errors.Is(err, ErrNotFound):
		return NewInvalidClient()
	case errors.Is(err, ErrCodeInvalid), errors.Is(err, ErrTokenInvalid):
		return NewInvalidGrant()
	case errors.Is(err, ErrScopeDenied):
		return NewInvalidScope()
	default:
		return NewServerError()
	}
}
