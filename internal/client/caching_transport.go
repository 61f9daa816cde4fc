package client

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every outbound call when Options.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Options configures the caching client.
type Options struct {
	CacheDir string        // disk cache directory, memory when empty
	Timeout  time.Duration // per request limit
}

// NewCachingHTTPClient returns a client that serves GET responses, such as an
// identity provider's key set, from cache while their Cache-Control allows it.
func NewCachingHTTPClient(opts Options) *http.Client {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if opts.CacheDir != "" {
		cache = diskcache.New(opts.CacheDir)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Transport: &cacheLogTransport{next: httpcache.NewTransport(cache)},
		Timeout:   timeout,
	}
}

// NewInMemoryCachingHTTPClient returns a caching client with the default options.
func NewInMemoryCachingHTTPClient() *http.Client {
	return NewCachingHTTPClient(Options{})
}

// cacheLogTransport logs whether each response came from the cache.
type cacheLogTransport struct {
	next http.RoundTripper
}

func (t *cacheLogTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(req.Context()).Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).
		Bool("cached", resp.Header.Get(httpcache.XFromCache) != "").
		Msg("Outbound request")

	return resp, nil
}
