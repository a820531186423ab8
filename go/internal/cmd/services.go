package main

import (
	"context"
	"net/http"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/auth"
	"github.com/mcdev12/livescore/go/internal/cache"
	"github.com/mcdev12/livescore/go/internal/gateway"
	"github.com/mcdev12/livescore/go/internal/metrics"
	"github.com/mcdev12/livescore/go/internal/persist"
	"github.com/mcdev12/livescore/go/internal/relay"
	"github.com/mcdev12/livescore/go/internal/store"
	"github.com/mcdev12/livescore/go/internal/transport/ws"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Engine    *gateway.Engine
	Hub       *ws.Hub
	Persister *persist.Persister
	Metrics   *metrics.Prometheus
	Auth      *auth.JWT
	// Relay and Listener are nil when their backends are not configured.
	Relay    *relay.Relay
	Listener *store.CodeListener

	closers []func() error
}

func setupServices(ctx context.Context, cfg *Config, db *database, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency injection chain
	// Store → write-behind persister → engine ← websocket hub
	svc := &Services{Metrics: metrics.New()}

	persistOpts := []persist.Option{
		persist.WithClock(clock),
		persist.WithRecorder(svc.Metrics),
	}

	var snapshots gateway.SnapshotCache
	if cfg.RedisURL != "" {
		client, err := cache.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, client.Close)
		c := cache.NewSnapshotCache(client, "livescore", cache.DefaultTTL)
		snapshots = c
		persistOpts = append(persistOpts, persist.WithCache(c))
		log.Info().Str("redis", redisAddr(client)).Msg("room snapshot cache enabled")
	}
	svc.Persister = persist.New(db.store, cfg.Persist, persistOpts...)

	hubCfg := cfg.Hub
	if len(cfg.AllowedOrigins) > 0 {
		origins := cfg.AllowedOrigins
		hubCfg.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(origins, r.Header.Get("Origin"))
		}
	}
	svc.Hub = ws.NewHub(hubCfg)
	svc.Hub.SetRecorder(svc.Metrics)
	svc.Hub.SetClock(clock)

	var mirror gateway.Mirror
	if cfg.NATSURL != "" {
		jsCfg := relay.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		sink, err := relay.NewJetStreamSink(ctx, jsCfg)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, sink.Close)
		svc.Relay = relay.New(sink, cfg.Relay)
		mirror = svc.Relay
	}

	var guard gateway.JoinGuard
	if cfg.JWTSecret != "" {
		svc.Auth = auth.New(cfg.JWTSecret, cfg.JWTIssuer)
		guard = auth.AdminGuard{RequireOwner: cfg.RequireOwner}
	} else {
		log.Warn().Msg("JWT_SECRET not set, declared roles are trusted")
	}

	deps := gateway.Deps{
		Store:     db.store,
		Due:       db.store,
		Transport: svc.Hub,
		Persister: svc.Persister,
		Cache:     snapshots,
		Mirror:    mirror,
		Metrics:   svc.Metrics,
		Guard:     guard,
		Pinger:    db.pinger,
		Clock:     clock,
	}
	svc.Engine = gateway.New(cfg.Engine, deps)
	svc.Hub.SetHandler(svc.Engine)
	svc.Persister.SetFailureHandler(svc.Engine.OnPersistFailure)

	if db.dsn != "" {
		lcfg := store.DefaultListenerConfig()
		lcfg.DatabaseURL = db.dsn
		l, err := store.NewCodeListener(svc.Engine.HandleCodeChange, lcfg)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.Listener = l
	}

	return svc, nil
}

// Close releases the external clients opened by setupServices.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close client")
		}
	}
	s.closers = nil
}

func redisAddr(client *redis.Client) string {
	return client.Options().Addr
}
