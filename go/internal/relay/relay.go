// Package relay mirrors every room fact onto a message stream so other
// services can follow rooms without holding a websocket.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livescore/go/internal/gateway"
	"github.com/rs/zerolog/log"
)

// Envelope is the relayed form of one room fact.
type Envelope struct {
	ID         string          `json:"eventId"`
	Event      string          `json:"eventType"`
	AccessCode string          `json:"accessCode"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Sink publishes one encoded envelope.
type Sink interface {
	Publish(ctx context.Context, env Envelope, data []byte) error
}

type Config struct {
	BufferSize     int
	PublishTimeout time.Duration
	// Skip lists events that are not relayed.
	Skip []string
}

func DefaultConfig() Config {
	return Config{
		BufferSize:     1024,
		PublishTimeout: 5 * time.Second,
		Skip:           []string{gateway.EventTimerTick},
	}
}

// Relay buffers room facts and publishes them in order from one goroutine.
// It implements gateway.Mirror.
type Relay struct {
	sink    Sink
	config  Config
	skip    map[string]struct{}
	queue   chan Envelope
	dropped atomic.Int64
}

func New(sink Sink, cfg Config) *Relay {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	skip := make(map[string]struct{}, len(cfg.Skip))
	for _, ev := range cfg.Skip {
		skip[ev] = struct{}{}
	}
	return &Relay{
		sink:   sink,
		config: cfg,
		skip:   skip,
		queue:  make(chan Envelope, cfg.BufferSize),
	}
}

// Mirror queues msg for relaying. It never blocks; when the buffer is full
// the fact is dropped and counted.
func (r *Relay) Mirror(code string, msg gateway.Message) {
	if _, skip := r.skip[msg.Event]; skip {
		return
	}
	var payload json.RawMessage
	if msg.Data != nil {
		raw, err := json.Marshal(msg.Data)
		if err != nil {
			log.Error().Err(err).Str("event", msg.Event).Msg("failed to marshal relayed payload")
			return
		}
		payload = raw
	}
	env := Envelope{
		ID:         uuid.New().String(),
		Event:      msg.Event,
		AccessCode: code,
		Timestamp:  msg.Timestamp.UTC(),
		Payload:    payload,
	}
	select {
	case r.queue <- env:
	default:
		r.dropped.Add(1)
		log.Warn().Str("access_code", code).Str("event", msg.Event).Msg("relay buffer full, dropping fact")
	}
}

// Dropped is the number of facts dropped on a full buffer.
func (r *Relay) Dropped() int64 { return r.dropped.Load() }

// Run publishes queued facts until ctx is cancelled, then flushes what is
// already buffered.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().Int("buffer", r.config.BufferSize).Msg("relay started")
	for {
		select {
		case env := <-r.queue:
			r.publish(context.Background(), env)
		case <-ctx.Done():
			r.flush()
			log.Info().Msg("relay stopped")
			return nil
		}
	}
}

func (r *Relay) flush() {
	for {
		select {
		case env := <-r.queue:
			r.publish(context.Background(), env)
		default:
			return
		}
	}
}

func (r *Relay) publish(ctx context.Context, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event_id", env.ID).Msg("failed to marshal envelope")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.PublishTimeout)
	defer cancel()
	if err := r.sink.Publish(ctx, env, data); err != nil {
		log.Error().
			Err(err).
			Str("access_code", env.AccessCode).
			Str("event", env.Event).
			Msg("failed to relay fact")
	}
}

// subjectFor builds prefix.code.event with subject tokens made safe.
func subjectFor(prefix, code, event string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, token(code), token(event))
}

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

func token(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}
