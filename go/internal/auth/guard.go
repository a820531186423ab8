package auth

import (
	"context"
	"fmt"

	"github.com/mcdev12/livescore/go/internal/gateway"
	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/mcdev12/livescore/go/internal/room"
	"github.com/mcdev12/livescore/go/internal/session"
)

// AdminGuard admits the admin role only to endpoints whose handshake token
// carried the admin claim. With RequireOwner the token subject must also be
// the user that owns the access code.
type AdminGuard struct {
	RequireOwner bool
}

func (g AdminGuard) AllowJoin(_ context.Context, sess session.Session, code models.AccessCode, role room.Role) error {
	if role != room.RoleAdmin {
		return nil
	}
	if !sess.Admin {
		return fmt.Errorf("%w: admin token required", gateway.ErrUnauthorized)
	}
	if g.RequireOwner && sess.UserID != code.UserID.String() {
		return fmt.Errorf("%w: %s does not own %s", gateway.ErrUnauthorized, sess.UserID, code.Code)
	}
	return nil
}
