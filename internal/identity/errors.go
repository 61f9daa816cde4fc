package identity

import (
	"errors"
	"fmt"
)

// AuthErrorKind identifies which step of the code exchange failed.
type AuthErrorKind string

const (
	AuthNetwork           AuthErrorKind = "network"
	AuthMalformedResponse AuthErrorKind = "malformed_response"
	AuthUnknownKey        AuthErrorKind = "unknown_key"
	AuthInvalidToken      AuthErrorKind = "invalid_token"
)

// ErrAuth matches any *AuthError via errors.Is.
var ErrAuth = errors.New("authentication failed")

// AuthError is returned by ResolveIdentity. It is always recoverable by sending
// the user back to the login screen.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

func authError(kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}
