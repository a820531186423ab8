// Package gateway is the real-time room engine: it authorizes and applies
// client events against live rooms, broadcasts the resulting facts, writes
// them behind to the durable store and drives room expiration.
package gateway

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/lifecycle"
	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/mcdev12/livescore/go/internal/persist"
	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/mcdev12/livescore/go/internal/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Store is the durable read side the engine needs.
type Store interface {
	GetAccessCode(ctx context.Context, code string) (*models.AccessCode, error)
	EnsureRoomSession(ctx context.Context, code string) (*models.RoomSession, error)
	GetMatch(ctx context.Context, code string) (*models.Match, error)
	ListDisplaySettings(ctx context.Context, code string) ([]models.DisplaySetting, error)
	ExpireAccessCode(ctx context.Context, code string) (bool, error)
	ExpireRoomSession(ctx context.Context, code string) (bool, error)
}

// Transport addresses endpoints and rooms. Every method must be non-blocking.
type Transport interface {
	Join(endpoint, code string)
	Leave(endpoint, code string)
	Publish(code string, msg Message)
	SendTo(endpoint string, msg Message)
	Disconnect(endpoint string)
	Members(code string) []string
}

// Persister is the write-behind queue.
type Persister interface {
	Enqueue(job persist.Job)
	RetryFailed(ctx context.Context) int
	Parked() int
	Forget(code string)
}

// SnapshotCache holds serialized room snapshots for fast cold starts.
type SnapshotCache interface {
	Get(ctx context.Context, code string) ([]byte, bool, error)
	Delete(ctx context.Context, code string) error
}

// Mirror receives a copy of every room fact. It must not block.
type Mirror interface {
	Mirror(code string, msg Message)
}

// Metrics observes engine activity.
type Metrics interface {
	ObserveEvent(event, outcome string, d time.Duration)
	SetRooms(n int)
	SetSessions(n int)
	RoomExpired(reason string)
	TickBroadcast()
}

// JoinGuard decides whether an endpoint may claim a role for a code.
type JoinGuard interface {
	AllowJoin(ctx context.Context, sess session.Session, code models.AccessCode, role room.Role) error
}

// Pinger reports store reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config tunes the engine.
type Config struct {
	// SessionTTL is how long a room lives after its first display attaches.
	SessionTTL    time.Duration
	TickInterval  time.Duration
	SweepInterval time.Duration
	ExpireWorkers int
	DedupeWindow  time.Duration
	RoomQueueSize int
	// JoinRetries bounds how often a join retries against a room that was
	// evicted between lookup and attach.
	JoinRetries int
}

func DefaultConfig() Config {
	return Config{
		SessionTTL:    2 * time.Hour,
		TickInterval:  time.Second,
		SweepInterval: lifecycle.DefaultSweepInterval,
		ExpireWorkers: lifecycle.DefaultWorkers,
		DedupeWindow:  room.DefaultDedupeWindow,
		RoomQueueSize: 64,
		JoinRetries:   3,
	}
}

// Deps are the collaborators of an Engine. Store, Due, Transport and
// Persister are required.
type Deps struct {
	Store     Store
	Due       lifecycle.DueSource
	Transport Transport
	Persister Persister
	Cache     SnapshotCache
	Mirror    Mirror
	Metrics   Metrics
	Guard     JoinGuard
	Pinger    Pinger
	Clock     clockwork.Clock
}

// Engine owns the room registry, session tracker and expiration scheduler.
type Engine struct {
	cfg       Config
	clock     clockwork.Clock
	store     Store
	transport Transport
	persister Persister
	cache     SnapshotCache
	mirror    Mirror
	metrics   Metrics
	guard     JoinGuard
	pinger    Pinger

	registry  *room.Registry
	sessions  *session.Tracker
	scheduler *lifecycle.Scheduler

	startedAt time.Time
}

func New(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.JoinRetries <= 0 {
		cfg.JoinRetries = def.JoinRetries
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := &Engine{
		cfg:       cfg,
		clock:     clock,
		store:     deps.Store,
		transport: deps.Transport,
		persister: deps.Persister,
		cache:     deps.Cache,
		mirror:    deps.Mirror,
		metrics:   deps.Metrics,
		guard:     deps.Guard,
		pinger:    deps.Pinger,
		sessions:  session.NewTracker(clock),
		startedAt: clock.Now(),
	}
	e.registry = room.NewRegistry(room.LoaderFunc(e.load), room.Options{
		Clock:        clock,
		DedupeWindow: cfg.DedupeWindow,
		QueueSize:    cfg.RoomQueueSize,
	})
	e.scheduler = lifecycle.NewScheduler(deps.Due, e.expireDue, lifecycle.Config{
		Clock:         clock,
		SweepInterval: cfg.SweepInterval,
		Workers:       cfg.ExpireWorkers,
		AfterSweep: func(ctx context.Context) {
			e.persister.RetryFailed(ctx)
		},
	})
	return e
}

// Registry exposes the room registry for admin tooling.
func (e *Engine) Registry() *room.Registry { return e.registry }

// Sessions exposes the session tracker for admin tooling.
func (e *Engine) Sessions() *session.Tracker { return e.sessions }

// Scheduler exposes the expiration scheduler.
func (e *Engine) Scheduler() *lifecycle.Scheduler { return e.scheduler }

// Run drives the expiration scheduler and the clock tick loop until ctx is
// cancelled, then tears every room down.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().
		Dur("session_ttl", e.cfg.SessionTTL).
		Dur("tick_interval", e.cfg.TickInterval).
		Msg("room engine started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.scheduler.Run(ctx) })
	g.Go(func() error { return e.runTicker(ctx) })
	err := g.Wait()

	e.Shutdown()
	return err
}

// Shutdown stops every room and clears the registry.
func (e *Engine) Shutdown() {
	e.registry.Shutdown()
	e.observeGauges()
	log.Info().Msg("room engine stopped")
}

// publish sends msg to every endpoint in the room and mirrors it.
func (e *Engine) publish(code string, msg Message) {
	e.transport.Publish(code, msg)
	if e.mirror != nil {
		e.mirror.Mirror(code, msg)
	}
}

func (e *Engine) message(event, code string, data any) Message {
	return Message{Event: event, AccessCode: code, Data: data, Timestamp: e.clock.Now()}
}

// sendError reports err to endpoint only.
func (e *Engine) sendError(endpoint, event, code string, err error) *Error {
	gwErr := classify(err)
	e.transport.SendTo(endpoint, e.message(event, code, ErrorPayload{
		Code:    gwErr.Code,
		Message: gwErr.Message,
	}))
	log.Debug().
		Err(err).
		Str("endpoint", endpoint).
		Str("access_code", code).
		Str("event", event).
		Str("code", string(gwErr.Code)).
		Msg("event rejected")
	return gwErr
}

func (e *Engine) observeGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.SetRooms(e.registry.Len())
	e.metrics.SetSessions(e.sessions.Len())
}
