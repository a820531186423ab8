package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/rs/zerolog/log"
)

// AccessCodeChange is the payload of an access_code_changes notification.
type AccessCodeChange struct {
	Code   string                  `json:"code"`
	Status models.AccessCodeStatus `json:"status"`
}

// ChangeHandler reacts to an access code leaving the joinable states.
type ChangeHandler func(ctx context.Context, change AccessCodeChange) error

type ListenerConfig struct {
	DatabaseURL   string // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string // Channel name to LISTEN on
	PingInterval  time.Duration
	MinReconnect  time.Duration
	MaxReconnect  time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "access_code_changes",
		PingInterval:  90 * time.Second,
		MinReconnect:  10 * time.Second,
		MaxReconnect:  time.Minute,
	}
}

// CodeListener listens for access code status changes made outside the engine.
type CodeListener struct {
	listener *pq.Listener
	handler  ChangeHandler
	cfg      ListenerConfig
}

func NewCodeListener(handler ChangeHandler, cfg ListenerConfig) (*CodeListener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for access code changes")

	return &CodeListener{listener: l, handler: handler, cfg: cfg}, nil
}

func (l *CodeListener) Start(ctx context.Context) error {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("access code listener shutting down")
			return l.listener.Close()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established
				continue
			}
			if err := l.handle(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle access code change")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *CodeListener) handle(ctx context.Context, extra string) error {
	change, err := ParseAccessCodeChange(extra)
	if err != nil {
		return err
	}
	log.Info().
		Str("access_code", change.Code).
		Str("status", string(change.Status)).
		Msg("access code changed")
	return l.handler(ctx, change)
}

// ParseAccessCodeChange decodes a notification payload.
func ParseAccessCodeChange(extra string) (AccessCodeChange, error) {
	var change AccessCodeChange
	if err := json.Unmarshal([]byte(extra), &change); err != nil {
		return change, fmt.Errorf("invalid access code notification: %w", err)
	}
	if change.Code == "" {
		return change, fmt.Errorf("invalid access code notification: missing code")
	}
	return change, nil
}
