package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-jose/go-jose/v4"
	"github.com/rs/zerolog/log"
)

// keySetFetcher downloads the provider's current signing keys.
// Keys are fetched on every call; the HTTP client may serve them from its cache.
type keySetFetcher struct {
	url        string
	httpClient *http.Client
}

func (f *keySetFetcher) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	log.Debug().Str("jwks_url", f.url).Msg("Fetching JWKS")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed: %s", resp.Status)
	}

	var keySet jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&keySet); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	return &keySet, nil
}

// lookup returns the public key for kid, or nil when the set has no usable match.
func lookup(keySet *jose.JSONWebKeySet, kid string) any {
	for _, key := range keySet.Key(kid) {
		if key.Use != "" && key.Use != "sig" {
			continue
		}
		if !key.IsPublic() {
			continue
		}
		return key.Key
	}
	return nil
}
