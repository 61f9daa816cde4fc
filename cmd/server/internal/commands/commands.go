package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wolfeidau/docsplain/internal/store"
	memorystore "github.com/wolfeidau/docsplain/internal/store/memory"
	postgresstore "github.com/wolfeidau/docsplain/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

type PostgresStoreFlags struct {
	ConnString     string        `help:"PostgreSQL connection string" env:"DATABASE_URL"`
	MaxConns       int32         `help:"maximum pool connections" default:"10" env:"DOCSPLAIN_POSTGRES_MAX_CONNS"`
	MinConns       int32         `help:"minimum idle pool connections" default:"0" env:"DOCSPLAIN_POSTGRES_MIN_CONNS"`
	ConnectTimeout time.Duration `help:"connect timeout" default:"10s" env:"DOCSPLAIN_POSTGRES_CONNECT_TIMEOUT"`
}

func (p PostgresStoreFlags) poolConfig() postgresstore.PoolConfig {
	return postgresstore.PoolConfig{
		ConnString:     p.ConnString,
		MaxConns:       p.MaxConns,
		MinConns:       p.MinConns,
		ConnectTimeout: p.ConnectTimeout,
	}
}

// openStore builds the configured store and makes sure its schema exists.
// The returned func releases any connections.
func openStore(ctx context.Context, storeType string, pg PostgresStoreFlags) (store.Store, func(), error) {
	switch storeType {
	case "memory":
		return memorystore.NewStore(), func() {}, nil
	case "postgres":
		pool, err := postgresstore.NewPool(ctx, pg.poolConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		st := postgresstore.NewStore(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		return st, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", storeType)
	}
}
