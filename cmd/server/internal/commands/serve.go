package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/docsplain/internal/client"
	"github.com/wolfeidau/docsplain/internal/flow"
	"github.com/wolfeidau/docsplain/internal/generate"
	httpmiddleware "github.com/wolfeidau/docsplain/internal/http"
	"github.com/wolfeidau/docsplain/internal/identity"
	"github.com/wolfeidau/docsplain/internal/logger"
	"github.com/wolfeidau/docsplain/internal/session"
	"github.com/wolfeidau/docsplain/internal/telemetry"
	"github.com/wolfeidau/docsplain/internal/website"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"DOCSPLAIN_LISTEN"`
	Cert   string `help:"path to TLS cert file, plain HTTP when empty" default:"" env:"DOCSPLAIN_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"DOCSPLAIN_TLS_KEY"`

	// Identity provider configuration
	Identity IdentityFlags `embed:"" prefix:"auth0-"`

	// Session and request handling
	SessionTTL     time.Duration `help:"session TTL" default:"24h" env:"DOCSPLAIN_SESSION_TTL"`
	SecureCookies  bool          `help:"mark the session cookie Secure" default:"true" negatable:"" env:"DOCSPLAIN_SECURE_COOKIES"`
	TrustProxy     bool          `help:"trust X-Forwarded-For and X-Real-IP headers" default:"false" env:"DOCSPLAIN_TRUST_PROXY"`
	TrustedOrigins []string      `help:"extra origins allowed to submit forms" env:"DOCSPLAIN_TRUSTED_ORIGINS"`
	HTTPCacheDir   string        `help:"directory used to cache identity provider key sets" default:"" env:"DOCSPLAIN_HTTP_CACHE_DIR"`

	// Release notes generation
	Generator GeneratorFlags `embed:"" prefix:"generator-"`

	// Telemetry
	Telemetry   bool    `help:"enable OpenTelemetry metrics and tracing" default:"false" env:"DOCSPLAIN_TELEMETRY"`
	SampleRatio float64 `help:"fraction of traces to record" default:"1" env:"DOCSPLAIN_TRACE_SAMPLE_RATIO"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"postgres" env:"DOCSPLAIN_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type IdentityFlags struct {
	Domain       string `help:"identity provider domain" env:"AUTH0_DOMAIN"`
	ClientID     string `help:"OAuth client ID" env:"AUTH0_CLIENT_ID"`
	ClientSecret string `help:"OAuth client secret" env:"AUTH0_CLIENT_SECRET"`
	RedirectURI  string `help:"OAuth callback URL" env:"AUTH0_REDIRECT_URI"`
	Audience     string `help:"optional API audience sent on authorize" default:"" env:"AUTH0_AUDIENCE"`
	Issuer       string `help:"override the expected token issuer" default:"" env:"AUTH0_ISSUER"`
	ForceLogin   bool   `help:"always prompt the user to log in" default:"false" env:"AUTH0_FORCE_LOGIN"`
}

func (f IdentityFlags) config(httpClient *http.Client) identity.Config {
	return identity.Config{
		Domain:       f.Domain,
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		RedirectURL:  f.RedirectURI,
		Audience:     f.Audience,
		ForceLogin:   f.ForceLogin,
		Issuer:       f.Issuer,
		HTTPClient:   httpClient,
	}
}

type GeneratorFlags struct {
	Provider      string `help:"text generation provider (gemini or openai)" default:"gemini" enum:"gemini,openai" env:"DOCSPLAIN_GENERATOR"`
	Model         string `help:"model name, provider default when empty" default:"" env:"DOCSPLAIN_MODEL"`
	GeminiAPIKey  string `help:"Gemini API key" env:"GEMINI_API_KEY"`
	OpenAIAPIKey  string `help:"OpenAI API key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `help:"OpenAI compatible API base URL" default:"" env:"OPENAI_BASE_URL"`
}

// textGenerator builds the configured generator, the returned func releases its client.
func (g GeneratorFlags) textGenerator(ctx context.Context) (generate.TextGenerator, func(), error) {
	switch g.Provider {
	case "gemini":
		model := g.Model
		if model == "" {
			model = generate.DefaultGeminiModel
		}
		gen, err := generate.NewGeminiGenerator(ctx, g.GeminiAPIKey, model)
		if err != nil {
			return nil, nil, err
		}
		return gen, func() { _ = gen.Close() }, nil
	case "openai":
		model := g.Model
		if model == "" {
			model = generate.DefaultOpenAIModel
		}
		gen, err := generate.NewOpenAIGenerator(g.OpenAIAPIKey, g.OpenAIBaseURL, model)
		if err != nil {
			return nil, nil, err
		}
		return gen, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown generator %q", g.Provider)
	}
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zerolog.DefaultContextLogger = &log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Telemetry {
		log.Info().Float64("sample_ratio", c.SampleRatio).Msg("Telemetry is enabled")
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "docsplain",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	st, closeStore, err := openStore(ctx, c.StoreType, c.PostgresStore)
	if err != nil {
		return err
	}
	defer closeStore()
	log.Info().Str("type", c.StoreType).Msg("Store ready")

	httpClient := client.NewCachingHTTPClient(client.Options{CacheDir: c.HTTPCacheDir})

	provider, err := identity.NewProvider(c.Identity.config(httpClient))
	if err != nil {
		return fmt.Errorf("failed to configure identity provider: %w", err)
	}

	gen, closeGen, err := c.Generator.textGenerator(ctx)
	if err != nil {
		return fmt.Errorf("failed to configure text generator: %w", err)
	}
	defer closeGen()

	sessions := session.NewMemoryStore()
	go sweepSessions(ctx, log, sessions, time.Minute)

	site, err := website.New(website.Config{
		Controller:     flow.NewController(provider, st, generate.NewPipeline(gen)),
		Sessions:       sessions,
		SessionTTL:     c.SessionTTL,
		SecureCookies:  c.SecureCookies,
		TrustedOrigins: c.TrustedOrigins,
	})
	if err != nil {
		return err
	}

	siteHandler, err := site.Handler()
	if err != nil {
		return err
	}

	handler := httpmiddleware.Chain(siteHandler,
		httpmiddleware.ClientIP(c.TrustProxy),
		telemetry.HTTPMiddleware("docsplain"),
		logger.HTTPRequests(log),
	)

	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be provided together (--cert and --key)")
	}

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sweepSessions removes expired sessions until ctx is done.
func sweepSessions(ctx context.Context, log zerolog.Logger, sessions session.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to delete expired sessions")
				continue
			}
			if n > 0 {
				log.Debug().Int("count", n).Msg("Deleted expired sessions")
			}
		}
	}
}
