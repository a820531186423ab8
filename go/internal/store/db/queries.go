package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const getAccessCode = `
SELECT code, status, max_uses, usage_count, expired_at, user_id, match_id, created_at, updated_at
FROM access_codes
WHERE code = $1
`

func (q *Queries) GetAccessCode(ctx context.Context, code string) (AccessCode, error) {
	row := q.db.QueryRowContext(ctx, getAccessCode, code)
	var i AccessCode
	err := row.Scan(
		&i.Code,
		&i.Status,
		&i.MaxUses,
		&i.UsageCount,
		&i.ExpiredAt,
		&i.UserID,
		&i.MatchID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertRoomSession = `
INSERT INTO room_sessions (access_code, status)
VALUES ($1, 'active')
ON CONFLICT (access_code) DO UPDATE
SET status = CASE WHEN room_sessions.status = 'expired' THEN room_sessions.status ELSE 'active' END,
    updated_at = now()
RETURNING access_code, client_connected, display_connected, expired_at, status, created_at, updated_at
`

func (q *Queries) UpsertRoomSession(ctx context.Context, accessCode string) (RoomSession, error) {
	row := q.db.QueryRowContext(ctx, upsertRoomSession, accessCode)
	var i RoomSession
	err := row.Scan(
		&i.AccessCode,
		pq.Array(&i.ClientConnected),
		pq.Array(&i.DisplayConnected),
		&i.ExpiredAt,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getRoomSession = `
SELECT access_code, client_connected, display_connected, expired_at, status, created_at, updated_at
FROM room_sessions
WHERE access_code = $1
`

func (q *Queries) GetRoomSession(ctx context.Context, accessCode string) (RoomSession, error) {
	row := q.db.QueryRowContext(ctx, getRoomSession, accessCode)
	var i RoomSession
	err := row.Scan(
		&i.AccessCode,
		pq.Array(&i.ClientConnected),
		pq.Array(&i.DisplayConnected),
		&i.ExpiredAt,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getMatch = `
SELECT id, home_name, away_name, home_logo, away_logo, home_score, away_score, match_time,
       statistics, cards, lineups, penalty, marquee, display, commentary, updated_at
FROM matches
WHERE id = (SELECT match_id FROM access_codes WHERE code = $1)
`

func (q *Queries) GetMatchByCode(ctx context.Context, code string) (Match, error) {
	row := q.db.QueryRowContext(ctx, getMatch, code)
	var i Match
	err := row.Scan(
		&i.ID,
		&i.HomeName,
		&i.AwayName,
		&i.HomeLogo,
		&i.AwayLogo,
		&i.HomeScore,
		&i.AwayScore,
		&i.MatchTime,
		&i.Statistics,
		&i.Cards,
		&i.Lineups,
		&i.Penalty,
		&i.Marquee,
		&i.Display,
		&i.Commentary,
		&i.UpdatedAt,
	)
	return i, err
}

const updateMatch = `
UPDATE matches SET
    home_name  = COALESCE($2, home_name),
    away_name  = COALESCE($3, away_name),
    home_logo  = COALESCE($4, home_logo),
    away_logo  = COALESCE($5, away_logo),
    home_score = COALESCE($6, home_score),
    away_score = COALESCE($7, away_score),
    match_time = COALESCE($8, match_time),
    statistics = COALESCE($9, statistics),
    cards      = COALESCE($10, cards),
    lineups    = COALESCE($11, lineups),
    penalty    = COALESCE($12, penalty),
    marquee    = COALESCE($13, marquee),
    display    = COALESCE($14, display),
    updated_at = now()
WHERE id = (SELECT match_id FROM access_codes WHERE code = $1)
`

type UpdateMatchParams struct {
	Code       string
	HomeName   sql.NullString
	AwayName   sql.NullString
	HomeLogo   sql.NullString
	AwayLogo   sql.NullString
	HomeScore  sql.NullInt32
	AwayScore  sql.NullInt32
	MatchTime  sql.NullString
	Statistics pqtype.NullRawMessage
	Cards      pqtype.NullRawMessage
	Lineups    pqtype.NullRawMessage
	Penalty    pqtype.NullRawMessage
	Marquee    pqtype.NullRawMessage
	Display    pqtype.NullRawMessage
}

func (q *Queries) UpdateMatch(ctx context.Context, arg UpdateMatchParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateMatch,
		arg.Code,
		arg.HomeName,
		arg.AwayName,
		arg.HomeLogo,
		arg.AwayLogo,
		arg.HomeScore,
		arg.AwayScore,
		arg.MatchTime,
		arg.Statistics,
		arg.Cards,
		arg.Lineups,
		arg.Penalty,
		arg.Marquee,
		arg.Display,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const setSessionDeadline = `
UPDATE room_sessions
SET expired_at = $2, status = 'active', updated_at = now()
WHERE access_code = $1 AND expired_at IS NULL AND status <> 'expired'
`

func (q *Queries) SetSessionDeadline(ctx context.Context, accessCode string, expiredAt time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, setSessionDeadline, accessCode, expiredAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markAccessCodeUsed = `
UPDATE access_codes
SET status = 'used', usage_count = usage_count + 1, updated_at = now()
WHERE code = $1 AND status IN ('active', 'used')
`

func (q *Queries) MarkAccessCodeUsed(ctx context.Context, code string) (int64, error) {
	result, err := q.db.ExecContext(ctx, markAccessCodeUsed, code)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const syncRoster = `
UPDATE room_sessions
SET client_connected = $2, display_connected = $3, updated_at = now()
WHERE access_code = $1 AND status <> 'expired'
`

func (q *Queries) SyncRoster(ctx context.Context, accessCode string, clients, displays []string) error {
	_, err := q.db.ExecContext(ctx, syncRoster, accessCode, pq.Array(clients), pq.Array(displays))
	return err
}

const expireAccessCode = `
UPDATE access_codes
SET status = 'expired', updated_at = now()
WHERE code = $1 AND status NOT IN ('expired', 'revoked')
`

func (q *Queries) ExpireAccessCode(ctx context.Context, code string) (int64, error) {
	result, err := q.db.ExecContext(ctx, expireAccessCode, code)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const expireRoomSession = `
UPDATE room_sessions
SET status = 'expired', client_connected = '{}', display_connected = '{}', updated_at = now()
WHERE access_code = $1 AND status <> 'expired'
`

func (q *Queries) ExpireRoomSession(ctx context.Context, accessCode string) (int64, error) {
	result, err := q.db.ExecContext(ctx, expireRoomSession, accessCode)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listDueRoomSessions = `
SELECT access_code
FROM room_sessions
WHERE status <> 'expired' AND expired_at IS NOT NULL AND expired_at <= $1
ORDER BY expired_at
`

func (q *Queries) ListDueRoomSessions(ctx context.Context, now time.Time) ([]string, error) {
	return q.listCodes(ctx, listDueRoomSessions, now)
}

const listDueAccessCodes = `
SELECT code
FROM access_codes
WHERE status IN ('active', 'used') AND expired_at IS NOT NULL AND expired_at <= $1
UNION
SELECT a.code
FROM access_codes a
JOIN room_sessions r ON r.access_code = a.code
WHERE r.status <> 'expired' AND a.status IN ('expired', 'revoked', 'inactive')
`

func (q *Queries) ListDueAccessCodes(ctx context.Context, now time.Time) ([]string, error) {
	return q.listCodes(ctx, listDueAccessCodes, now)
}

func (q *Queries) listCodes(ctx context.Context, query string, now time.Time) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		items = append(items, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listDisplaySettings = `
SELECT access_code, type, code_logo, name, url, position, created_at
FROM display_settings
WHERE access_code = $1
ORDER BY type, position, created_at
`

func (q *Queries) ListDisplaySettings(ctx context.Context, accessCode string) ([]DisplaySetting, error) {
	rows, err := q.db.QueryContext(ctx, listDisplaySettings, accessCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DisplaySetting
	for rows.Next() {
		var i DisplaySetting
		if err := rows.Scan(
			&i.AccessCode,
			&i.Type,
			&i.CodeLogo,
			&i.Name,
			&i.Url,
			&i.Position,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertDisplaySetting = `
INSERT INTO display_settings (access_code, type, code_logo, name, url, position)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (access_code, type, code_logo) DO UPDATE
SET name = EXCLUDED.name, url = EXCLUDED.url, position = EXCLUDED.position
`

type InsertDisplaySettingParams struct {
	AccessCode string
	Type       string
	CodeLogo   string
	Name       string
	Url        string
	Position   int32
}

func (q *Queries) InsertDisplaySetting(ctx context.Context, arg InsertDisplaySettingParams) error {
	_, err := q.db.ExecContext(ctx, insertDisplaySetting,
		arg.AccessCode,
		arg.Type,
		arg.CodeLogo,
		arg.Name,
		arg.Url,
		arg.Position,
	)
	return err
}

const updateDisplaySetting = `
UPDATE display_settings
SET code_logo = $4, name = $5, url = $6, position = $7
WHERE access_code = $1 AND type = $2 AND code_logo = $3
`

type UpdateDisplaySettingParams struct {
	AccessCode   string
	Type         string
	PrevCodeLogo string
	CodeLogo     string
	Name         string
	Url          string
	Position     int32
}

func (q *Queries) UpdateDisplaySetting(ctx context.Context, arg UpdateDisplaySettingParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateDisplaySetting,
		arg.AccessCode,
		arg.Type,
		arg.PrevCodeLogo,
		arg.CodeLogo,
		arg.Name,
		arg.Url,
		arg.Position,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteDisplaySetting = `
DELETE FROM display_settings
WHERE access_code = $1 AND type = $2 AND code_logo = $3
`

func (q *Queries) DeleteDisplaySetting(ctx context.Context, accessCode, typ, codeLogo string) error {
	_, err := q.db.ExecContext(ctx, deleteDisplaySetting, accessCode, typ, codeLogo)
	return err
}

const reindexDisplaySettings = `
UPDATE display_settings d
SET position = o.rn - 1
FROM (
    SELECT code_logo, row_number() OVER (ORDER BY position, created_at) AS rn
    FROM display_settings
    WHERE access_code = $1 AND type = $2
) o
WHERE d.access_code = $1 AND d.type = $2 AND d.code_logo = o.code_logo
`

func (q *Queries) ReindexDisplaySettings(ctx context.Context, accessCode, typ string) error {
	_, err := q.db.ExecContext(ctx, reindexDisplaySettings, accessCode, typ)
	return err
}
