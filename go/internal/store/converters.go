package store

import (
	"database/sql"

	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/mcdev12/livescore/go/internal/sqlutil"
	"github.com/mcdev12/livescore/go/internal/store/db"
)

func dbAccessCodeToModel(r db.AccessCode) *models.AccessCode {
	return &models.AccessCode{
		Code:       r.Code,
		Status:     models.AccessCodeStatus(r.Status),
		MaxUses:    int(r.MaxUses),
		UsageCount: int(r.UsageCount),
		ExpiredAt:  sqlutil.FromSqlTime(r.ExpiredAt),
		UserID:     r.UserID,
		MatchID:    r.MatchID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func dbRoomSessionToModel(r db.RoomSession) *models.RoomSession {
	return &models.RoomSession{
		AccessCode:       r.AccessCode,
		ClientConnected:  nonNil(r.ClientConnected),
		DisplayConnected: nonNil(r.DisplayConnected),
		ExpiredAt:        sqlutil.FromSqlTime(r.ExpiredAt),
		Status:           models.RoomSessionStatus(r.Status),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func dbMatchToModel(r db.Match) *models.Match {
	return &models.Match{
		ID:         r.ID,
		HomeName:   r.HomeName,
		AwayName:   r.AwayName,
		HomeLogo:   r.HomeLogo,
		AwayLogo:   r.AwayLogo,
		HomeScore:  int(r.HomeScore),
		AwayScore:  int(r.AwayScore),
		MatchTime:  r.MatchTime,
		Statistics: sqlutil.FromNullRawMessage(r.Statistics),
		Cards:      sqlutil.FromNullRawMessage(r.Cards),
		Lineups:    sqlutil.FromNullRawMessage(r.Lineups),
		Penalty:    sqlutil.FromNullRawMessage(r.Penalty),
		Marquee:    sqlutil.FromNullRawMessage(r.Marquee),
		Display:    sqlutil.FromNullRawMessage(r.Display),
		Commentary: sqlutil.FromSqlStringPtr(r.Commentary),
		UpdatedAt:  r.UpdatedAt,
	}
}

func dbDisplaySettingToModel(r db.DisplaySetting) models.DisplaySetting {
	return models.DisplaySetting{
		AccessCode: r.AccessCode,
		Type:       models.OverlayType(r.Type),
		CodeLogo:   r.CodeLogo,
		Name:       r.Name,
		URL:        r.Url,
		Position:   int(r.Position),
		CreatedAt:  r.CreatedAt,
	}
}

func toNullInt32(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func matchPatchToParams(code string, p models.MatchPatch) db.UpdateMatchParams {
	return db.UpdateMatchParams{
		Code:       code,
		HomeName:   sqlutil.ToSqlString(p.HomeName),
		AwayName:   sqlutil.ToSqlString(p.AwayName),
		HomeLogo:   sqlutil.ToSqlString(p.HomeLogo),
		AwayLogo:   sqlutil.ToSqlString(p.AwayLogo),
		HomeScore:  toNullInt32(p.HomeScore),
		AwayScore:  toNullInt32(p.AwayScore),
		MatchTime:  sqlutil.ToSqlString(p.MatchTime),
		Statistics: sqlutil.ToNullRawMessage(p.Statistics),
		Cards:      sqlutil.ToNullRawMessage(p.Cards),
		Lineups:    sqlutil.ToNullRawMessage(p.Lineups),
		Penalty:    sqlutil.ToNullRawMessage(p.Penalty),
		Marquee:    sqlutil.ToNullRawMessage(p.Marquee),
		Display:    sqlutil.ToNullRawMessage(p.Display),
	}
}
