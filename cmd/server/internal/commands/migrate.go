package commands

import (
	"context"
	"errors"

	"github.com/wolfeidau/docsplain/internal/logger"
)

type MigrateCmd struct {
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	if m.PostgresStore.ConnString == "" {
		return errors.New("connection string is required (--postgres-conn-string or DATABASE_URL)")
	}

	_, closeStore, err := openStore(ctx, "postgres", m.PostgresStore)
	if err != nil {
		return err
	}
	defer closeStore()

	log.Info().Msg("Schema is up to date")
	return nil
}
