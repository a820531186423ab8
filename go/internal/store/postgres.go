// Package store is the durable side of the room engine: access codes, room
// sessions, matches and overlay rows.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/mcdev12/livescore/go/internal/sqlutil"
	"github.com/mcdev12/livescore/go/internal/store/db"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres implements the engine's store over database/sql and lib/pq.
type Postgres struct {
	db      *sql.DB
	queries *db.Queries
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpen int) (*Postgres, error) {
	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if maxOpen > 0 {
		database.SetMaxOpenConns(maxOpen)
		database.SetMaxIdleConns(maxOpen)
	}
	database.SetConnMaxIdleTime(5 * time.Minute)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgres(database), nil
}

func NewPostgres(database *sql.DB) *Postgres {
	return &Postgres{db: database, queries: db.New(database)}
}

// DB returns the underlying pool.
func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Close() error { return p.db.Close() }

// Ping checks the connection for health reporting.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)
	for _, f := range files {
		body, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", f, err)
		}
		if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", f, err)
		}
		log.Info().Str("migration", f).Msg("applied migration")
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) GetAccessCode(ctx context.Context, code string) (*models.AccessCode, error) {
	row, err := p.queries.GetAccessCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get access code: %w", notFound(err))
	}
	return dbAccessCodeToModel(row), nil
}

// EnsureRoomSession creates the room session for code, or marks an existing
// non-expired one active.
func (p *Postgres) EnsureRoomSession(ctx context.Context, code string) (*models.RoomSession, error) {
	row, err := p.queries.UpsertRoomSession(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure room session: %w", err)
	}
	return dbRoomSessionToModel(row), nil
}

func (p *Postgres) GetRoomSession(ctx context.Context, code string) (*models.RoomSession, error) {
	row, err := p.queries.GetRoomSession(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get room session: %w", notFound(err))
	}
	return dbRoomSessionToModel(row), nil
}

// GetMatch returns the match bound to code.
func (p *Postgres) GetMatch(ctx context.Context, code string) (*models.Match, error) {
	row, err := p.queries.GetMatchByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", notFound(err))
	}
	return dbMatchToModel(row), nil
}

func (p *Postgres) ListDisplaySettings(ctx context.Context, code string) ([]models.DisplaySetting, error) {
	rows, err := p.queries.ListDisplaySettings(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to list display settings: %w", err)
	}
	out := make([]models.DisplaySetting, len(rows))
	for i, r := range rows {
		out[i] = dbDisplaySettingToModel(r)
	}
	return out, nil
}

func (p *Postgres) UpdateMatch(ctx context.Context, code string, patch models.MatchPatch) error {
	if patch.Empty() {
		return nil
	}
	n, err := p.queries.UpdateMatch(ctx, matchPatchToParams(code, patch))
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update match for %s: %w", code, ErrNotFound)
	}
	return nil
}

// MarkFirstDisplay sets the session deadline if it is still null and, only
// then, advances the access code to used. It reports whether the deadline
// was set by this call.
func (p *Postgres) MarkFirstDisplay(ctx context.Context, code string, expiredAt time.Time) (bool, error) {
	var set bool
	err := sqlutil.Run(ctx, p.db, nil, p.queries.WithTx, func(q *db.Queries) error {
		n, err := q.SetSessionDeadline(ctx, code, expiredAt)
		if err != nil {
			return fmt.Errorf("failed to set session deadline: %w", err)
		}
		if n == 0 {
			return nil
		}
		set = true
		if _, err := q.MarkAccessCodeUsed(ctx, code); err != nil {
			return fmt.Errorf("failed to mark access code used: %w", err)
		}
		return nil
	})
	return set, err
}

func (p *Postgres) SyncRoster(ctx context.Context, code string, clients, displays []string) error {
	if err := p.queries.SyncRoster(ctx, code, nonNil(clients), nonNil(displays)); err != nil {
		return fmt.Errorf("failed to sync roster: %w", err)
	}
	return nil
}

func (p *Postgres) InsertDisplaySetting(ctx context.Context, s models.DisplaySetting) error {
	err := p.queries.InsertDisplaySetting(ctx, db.InsertDisplaySettingParams{
		AccessCode: s.AccessCode,
		Type:       string(s.Type),
		CodeLogo:   s.CodeLogo,
		Name:       s.Name,
		Url:        s.URL,
		Position:   int32(s.Position),
	})
	if err != nil {
		return fmt.Errorf("failed to insert display setting: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateDisplaySetting(ctx context.Context, prevCodeLogo string, s models.DisplaySetting) error {
	n, err := p.queries.UpdateDisplaySetting(ctx, db.UpdateDisplaySettingParams{
		AccessCode:   s.AccessCode,
		Type:         string(s.Type),
		PrevCodeLogo: prevCodeLogo,
		CodeLogo:     s.CodeLogo,
		Name:         s.Name,
		Url:          s.URL,
		Position:     int32(s.Position),
	})
	if err != nil {
		return fmt.Errorf("failed to update display setting: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update display setting %s: %w", prevCodeLogo, ErrNotFound)
	}
	return nil
}

// DeleteDisplaySetting removes one overlay row and closes the position gap.
func (p *Postgres) DeleteDisplaySetting(ctx context.Context, code string, t models.OverlayType, codeLogo string) error {
	return sqlutil.Run(ctx, p.db, nil, p.queries.WithTx, func(q *db.Queries) error {
		if err := q.DeleteDisplaySetting(ctx, code, string(t), codeLogo); err != nil {
			return fmt.Errorf("failed to delete display setting: %w", err)
		}
		if err := q.ReindexDisplaySettings(ctx, code, string(t)); err != nil {
			return fmt.Errorf("failed to reindex display settings: %w", err)
		}
		return nil
	})
}

func (p *Postgres) ExpireAccessCode(ctx context.Context, code string) (bool, error) {
	n, err := p.queries.ExpireAccessCode(ctx, code)
	if err != nil {
		return false, fmt.Errorf("failed to expire access code: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) ExpireRoomSession(ctx context.Context, code string) (bool, error) {
	n, err := p.queries.ExpireRoomSession(ctx, code)
	if err != nil {
		return false, fmt.Errorf("failed to expire room session: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) ListDueRoomSessions(ctx context.Context, now time.Time) ([]string, error) {
	codes, err := p.queries.ListDueRoomSessions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due room sessions: %w", err)
	}
	return codes, nil
}

func (p *Postgres) ListDueAccessCodes(ctx context.Context, now time.Time) ([]string, error) {
	codes, err := p.queries.ListDueAccessCodes(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due access codes: %w", err)
	}
	return codes, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
