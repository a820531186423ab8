// Package httpapi serves the admin API, the websocket handshake and the
// health and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mcdev12/livescore/go/internal/gateway"
	"github.com/mcdev12/livescore/go/internal/session"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Admin is the engine's administrative surface.
type Admin interface {
	ForceExpireRoom(ctx context.Context, code string) error
	GetRoomSnapshot(ctx context.Context, code string) (*gateway.RoomSnapshot, error)
	ListActiveRooms(ctx context.Context) []gateway.RoomSummary
	DisconnectEndpoint(ctx context.Context, endpoint string) bool
	GetHealth(ctx context.Context) gateway.Health
}

// Upgrader turns a handshake request into a live connection.
type Upgrader interface {
	Upgrade(w http.ResponseWriter, r *http.Request, id session.Identity) error
}

// Identifier resolves the identity carried by a request.
type Identifier interface {
	Identify(r *http.Request) (session.Identity, error)
}

type Options struct {
	Admin    Admin
	Upgrader Upgrader
	// Auth is optional. Without it every handshake is anonymous and the
	// admin API is open.
	Auth           Identifier
	Metrics        http.Handler
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type server struct {
	admin    Admin
	upgrader Upgrader
	auth     Identifier
	timeout  time.Duration
}

// NewHandler builds the routed, CORS-wrapped h2c handler.
func NewHandler(opts Options) http.Handler {
	s := &server{
		admin:    opts.Admin,
		upgrader: opts.Upgrader,
		auth:     opts.Auth,
		timeout:  opts.RequestTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /ws", s.websocket)
	mux.HandleFunc("GET /api/rooms", s.requireAdmin(s.listRooms))
	mux.HandleFunc("GET /api/rooms/{code}", s.requireAdmin(s.getRoom))
	mux.HandleFunc("POST /api/rooms/{code}/expire", s.requireAdmin(s.expireRoom))
	mux.HandleFunc("DELETE /api/rooms/{code}", s.requireAdmin(s.expireRoom))
	mux.HandleFunc("POST /api/endpoints/{id}/disconnect", s.requireAdmin(s.disconnect))
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	h := s.admin.GetHealth(ctx)
	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *server) websocket(w http.ResponseWriter, r *http.Request) {
	var id session.Identity
	if s.auth != nil {
		var err error
		id, err = s.auth.Identify(r)
		if err != nil {
			log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("rejected handshake")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
	}
	// Upgrade writes its own error response.
	if err := s.upgrader.Upgrade(w, r, id); err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
	}
}

func (s *server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next(w, r)
			return
		}
		id, err := s.auth.Identify(r)
		switch {
		case err != nil, id.UserID == "":
			writeError(w, http.StatusUnauthorized, "admin token required")
			return
		case !id.Admin:
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r)
	}
}

func (s *server) listRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	rooms := s.admin.ListActiveRooms(ctx)
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "count": len(rooms)})
}

func (s *server) getRoom(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	snap, err := s.admin.GetRoomSnapshot(ctx, r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) expireRoom(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	code := r.PathValue("code")
	if err := s.admin.ForceExpireRoom(ctx, code); err != nil {
		log.Error().Err(err).Str("access_code", code).Msg("force expire failed")
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_code": code, "status": "expired"})
}

func (s *server) disconnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	id := r.PathValue("id")
	if !s.admin.DisconnectEndpoint(ctx, id) {
		writeError(w, http.StatusNotFound, "endpoint not connected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"endpoint_id": id, "status": "disconnected"})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timed out")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
