package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/dbconfig"
	"github.com/mcdev12/livescore/go/internal/gateway"
	"github.com/mcdev12/livescore/go/internal/lifecycle"
	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/mcdev12/livescore/go/internal/persist"
	"github.com/mcdev12/livescore/go/internal/store"
	"github.com/rs/zerolog/log"
)

// durableStore is everything the process needs from a store driver.
type durableStore interface {
	gateway.Store
	lifecycle.DueSource
	persist.Writer
}

type database struct {
	store  durableStore
	pinger gateway.Pinger
	// dsn is empty for the memory driver.
	dsn   string
	close func() error
}

func setupDatabase(ctx context.Context, cfg *Config, clock clockwork.Clock) (*database, error) {
	switch cfg.StoreDriver {
	case "memory":
		mem := store.NewMemory(clock)
		if cfg.DevSeedCode != "" {
			mem.Seed(cfg.DevSeedCode, nil, models.Match{HomeName: "Home", AwayName: "Away"})
			log.Info().Str("access_code", cfg.DevSeedCode).Msg("seeded memory store")
		}
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return &database{store: mem, close: func() error { return nil }}, nil

	case "postgres":
		dbCfg := dbconfig.NewConfigFromEnv()
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pg, err := store.Open(openCtx, dbCfg.DSN(), dbCfg.MaxConns)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(openCtx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		log.Info().Str("dsn", dbCfg.String()).Msg("connected to database")
		return &database{store: pg, pinger: pg, dsn: dbCfg.DSN(), close: pg.Close}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
