package identity

import (
	"errors"
	"net/http"
	"strings"
)

// Config describes the identity provider tenant and this application's registration with it.
type Config struct {
	// Domain is the provider tenant, e.g. "example.us.auth0.com" or "https://example.us.auth0.com".
	Domain       string
	ClientID     string
	ClientSecret string

	// RedirectURL must match the value registered with the provider exactly.
	RedirectURL string

	// Audience is optional and only sent on the authorize request.
	Audience string

	// ForceLogin adds prompt=login so the provider always re-authenticates.
	ForceLogin bool

	// Issuer overrides the expected "iss" claim, defaults to "{domain}/".
	Issuer string

	// HTTPClient is used for the token and key discovery calls.
	HTTPClient *http.Client
}

// Validate checks the required settings are present.
func (c *Config) Validate() error {
	if c.Domain == "" {
		return errors.New("identity provider domain is required")
	}
	if c.ClientID == "" || c.ClientSecret == "" || c.RedirectURL == "" {
		return errors.New("client ID, client secret, and redirect URL are required")
	}
	return nil
}

// BaseURL returns the provider origin without a trailing slash.
func (c *Config) BaseURL() string {
	base := strings.TrimRight(c.Domain, "/")
	if !strings.HasPrefix(base, "https://") && !strings.HasPrefix(base, "http://") {
		base = "https://" + base
	}
	return base
}

// ExpectedIssuer returns the issuer id tokens must carry.
func (c *Config) ExpectedIssuer() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return c.BaseURL() + "/"
}

func (c *Config) authorizeURL() string { return c.BaseURL() + "/authorize" }
func (c *Config) tokenURL() string     { return c.BaseURL() + "/oauth/token" }
func (c *Config) jwksURL() string      { return c.BaseURL() + "/.well-known/jwks.json" }
