package models

import "errors"

var (
	ErrClaimsMissingSubject = errors.New("identity claims missing subject")
	ErrClaimsMissingEmail   = errors.New("identity claims missing email")
)

// IdentityClaims are the verified facts about a user returned by the identity provider
// after a successful authorization code exchange.
type IdentityClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// Validate checks the claims needed to resolve or register a user.
func (c *IdentityClaims) Validate() error {
	if c.Subject == "" {
		return ErrClaimsMissingSubject
	}
	if c.Email == "" {
		return ErrClaimsMissingEmail
	}
	return nil
}
