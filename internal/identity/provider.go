package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/wolfeidau/docsplain/internal/client"
	"github.com/wolfeidau/docsplain/internal/models"
	"github.com/wolfeidau/docsplain/internal/telemetry"
)

// Provider performs the authorization code flow against the identity provider.
type Provider struct {
	cfg    Config
	oauth  *oauth2.Config
	keys   *keySetFetcher
	parser *jwt.Parser
}

// idTokenClaims are the id token claims this application reads.
type idTokenClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// NewProvider creates a provider from cfg. When cfg.HTTPClient is nil a caching client is used.
func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = client.NewInMemoryCachingHTTPClient()
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.authorizeURL(),
			TokenURL:  cfg.tokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithAudience(cfg.ClientID),
		jwt.WithIssuer(cfg.ExpectedIssuer()),
		jwt.WithExpirationRequired(),
	)

	return &Provider{
		cfg:    cfg,
		oauth:  oauthCfg,
		keys:   &keySetFetcher{url: cfg.jwksURL(), httpClient: cfg.HTTPClient},
		parser: parser,
	}, nil
}

// AuthCodeURL returns the URL the browser is sent to in order to log in.
func (p *Provider) AuthCodeURL(state string) string {
	opts := []oauth2.AuthCodeOption{}
	if p.cfg.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", p.cfg.Audience))
	}
	if p.cfg.ForceLogin {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "login"))
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

// ResolveIdentity exchanges a one-time authorization code for verified identity claims.
// Every failure is returned as an *AuthError.
func (p *Provider) ResolveIdentity(ctx context.Context, code string) (_ *models.IdentityClaims, err error) {
	ctx, span := telemetry.StartSpan(ctx, "identity.Provider.ResolveIdentity",
		attribute.String("identity.domain", p.cfg.Domain))
	defer func() { telemetry.EndSpan(span, err) }()

	if code == "" {
		return nil, authError(AuthMalformedResponse, errors.New("authorization code is empty"))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, authError(AuthMalformedResponse, errors.New("token response has no id_token"))
	}

	kid, err := tokenKeyID(rawIDToken)
	if err != nil {
		return nil, authError(AuthMalformedResponse, err)
	}

	keySet, err := p.keys.fetch(ctx)
	if err != nil {
		return nil, authError(AuthNetwork, err)
	}

	key := lookup(keySet, kid)
	if key == nil {
		return nil, authError(AuthUnknownKey, fmt.Errorf("no signing key matches kid %q", kid))
	}

	claims := &idTokenClaims{}
	if _, err := p.parser.ParseWithClaims(rawIDToken, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return nil, authError(AuthInvalidToken, err)
	}

	identity := &models.IdentityClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}
	if err := identity.Validate(); err != nil {
		return nil, authError(AuthInvalidToken, err)
	}

	log.Debug().Str("sub", identity.Subject).Msg("Identity resolved")

	return identity, nil
}

// tokenKeyID reads the kid header without verifying the token.
func tokenKeyID(raw string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, &jwt.RegisteredClaims{})
	if err != nil {
		return "", fmt.Errorf("id_token is not a JWT: %w", err)
	}
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return "", errors.New("id_token header has no kid")
	}
	return kid, nil
}

func classifyExchangeError(err error) *AuthError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return authError(AuthNetwork, fmt.Errorf("token endpoint returned %d: %w", retrieveErr.Response.StatusCode, err))
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return authError(AuthNetwork, err)
	}

	return authError(AuthMalformedResponse, err)
}
