package persist

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livescore/go/internal/models"
)

// ErrQueueFull is reported when a shard cannot accept a job.
var ErrQueueFull = errors.New("persist queue full")

// Writer is the durable store surface used by the persister.
type Writer interface {
	UpdateMatch(ctx context.Context, code string, patch models.MatchPatch) error
	InsertDisplaySetting(ctx context.Context, s models.DisplaySetting) error
	UpdateDisplaySetting(ctx context.Context, prevCodeLogo string, s models.DisplaySetting) error
	DeleteDisplaySetting(ctx context.Context, code string, t models.OverlayType, codeLogo string) error
	MarkFirstDisplay(ctx context.Context, code string, expiredAt time.Time) (bool, error)
	SyncRoster(ctx context.Context, code string, clients, displays []string) error
}

// Cache stores serialized room snapshots.
type Cache interface {
	Put(ctx context.Context, code string, snapshot []byte) error
}

// Op is the kind of durable write a Job performs.
type Op string

const (
	OpMatchPatch   Op = "match_patch"
	OpOverlay      Op = "overlay"
	OpFirstDisplay Op = "first_display"
	OpRoster       Op = "roster"
	OpSnapshot     Op = "snapshot"
)

// OverlayOp is the display setting row change of an overlay mutation.
type OverlayOp struct {
	Behavior     string
	PrevCodeLogo string
	Setting      models.DisplaySetting
}

// Job is one queued durable write for a code.
type Job struct {
	ID   uuid.UUID
	Seq  uint64
	Code string
	Op   Op
	// Origin is the endpoint that caused the write; failures are reported to it.
	Origin string
	// Event is the inbound event that caused the write.
	Event string

	Patch     models.MatchPatch
	Overlay   *OverlayOp
	ExpiredAt time.Time
	Clients   []string
	Displays  []string
	Snapshot  json.RawMessage

	Attempts   int
	EnqueuedAt time.Time
}

// FailureFunc is called the first time a job fails all of its attempts.
type FailureFunc func(job Job, err error)

// Recorder observes persister activity.
type Recorder interface {
	ObservePersist(op string, err error, d time.Duration)
	SetPersistParked(n int)
}

// Config tunes the persister.
type Config struct {
	Shards     int
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
	MaxParked  int
	// WriteTimeout bounds one store call.
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Shards:       8,
		QueueSize:    256,
		MaxRetries:   0,
		RetryDelay:   500 * time.Millisecond,
		MaxParked:    1024,
		WriteTimeout: 5 * time.Second,
	}
}
