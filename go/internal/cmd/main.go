package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("livescore exited")
	}
	log.Info().Msg("livescore stopped")
}

func setupLogging(cfg *Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Env != "prod" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func run(ctx context.Context, cfg *Config) error {
	clock := clockwork.NewRealClock()

	db, err := setupDatabase(ctx, cfg, clock)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}()

	services, err := setupServices(ctx, cfg, db, clock)
	if err != nil {
		return err
	}
	defer services.Close()

	server := setupServer(cfg, services)

	// The persister outlives ctx so Stop can drain writes queued during shutdown.
	persistCtx, cancelPersist := context.WithCancel(context.Background())
	defer cancelPersist()
	if err := services.Persister.Start(persistCtx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return services.Engine.Run(gctx) })
	if services.Relay != nil {
		g.Go(func() error { return services.Relay.Run(gctx) })
	}
	if services.Listener != nil {
		g.Go(func() error { return services.Listener.Start(gctx) })
	}
	g.Go(func() error {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.StoreDriver).
			Bool("auth", services.Auth != nil).
			Bool("relay", services.Relay != nil).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		services.Hub.Shutdown()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Rooms are stopped by Engine.Run; drain queued writes last.
	if stopErr := services.Persister.Stop(); stopErr != nil {
		log.Warn().Err(stopErr).Msg("failed to stop persister")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
