package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livescore/go/internal/matchclock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Seed is the durable state a room is rehydrated from.
type Seed struct {
	Current         CurrentState
	Timer           *matchclock.Snapshot
	SessionDeadline *time.Time
	CodeDeadline    *time.Time
}

// Loader reads (and ensures) the durable state of a code on room creation.
type Loader interface {
	Load(ctx context.Context, code string) (*Seed, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, code string) (*Seed, error)

func (f LoaderFunc) Load(ctx context.Context, code string) (*Seed, error) { return f(ctx, code) }

// Options tunes rooms created by a Registry.
type Options struct {
	Clock        clockwork.Clock
	DedupeWindow time.Duration
	QueueSize    int
	// LoadTimeout bounds one shared room load.
	LoadTimeout time.Duration
}

// DefaultLoadTimeout bounds a room load when Options leaves it unset.
const DefaultLoadTimeout = 10 * time.Second

// Registry maps access codes to live rooms.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	group  singleflight.Group
	loader Loader
	opts   Options
}

func NewRegistry(loader Loader, opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.DedupeWindow <= 0 {
		opts.DedupeWindow = DefaultDedupeWindow
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	return &Registry{
		rooms:  make(map[string]*Room),
		loader: loader,
		opts:   opts,
	}
}

// Get returns the live room for code, or nil.
func (r *Registry) Get(code string) *Room {
	r.mu.RLock()
	rm := r.rooms[code]
	r.mu.RUnlock()
	if rm == nil || rm.Closed() {
		return nil
	}
	return rm
}

// GetOrCreate returns the live room for code, loading it from the durable
// store when absent. Concurrent callers for the same code share one load,
// which runs detached from any caller's cancellation; a caller whose ctx ends
// first returns its ctx error and the load carries on for the others.
func (r *Registry) GetOrCreate(ctx context.Context, code string) (*Room, error) {
	if rm := r.Get(code); rm != nil {
		return rm, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(code, func() (any, error) {
		if rm := r.Get(code); rm != nil {
			return rm, nil
		}

		ctx, cancel := context.WithTimeout(loadCtx, r.opts.LoadTimeout)
		defer cancel()
		seed, err := r.loader.Load(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to load room %s: %w", code, err)
		}

		rm := newRoom(code, r.opts.Clock, seed, r.opts)
		r.mu.Lock()
		r.rooms[code] = rm
		r.mu.Unlock()

		log.Debug().Str("access_code", code).Msg("room created")
		return rm, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Room), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EvictIfEmpty closes and removes the room when no endpoint is attached.
// Durable rows are never touched.
func (r *Registry) EvictIfEmpty(ctx context.Context, code string) (bool, error) {
	rm := r.Get(code)
	if rm == nil {
		return false, nil
	}

	var evict bool
	err := rm.Do(ctx, func(s *State) error {
		if s.Empty() {
			s.Close()
			evict = true
		}
		return nil
	})
	if errors.Is(err, ErrRoomClosed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !evict {
		return false, nil
	}

	r.remove(code, rm)
	rm.Stop()
	log.Debug().Str("access_code", code).Msg("room evicted")
	return true, nil
}

// Detach removes the room from the registry without stopping it and returns
// it. The caller owns stopping it.
func (r *Registry) Detach(code string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[code]
	delete(r.rooms, code)
	return rm
}

func (r *Registry) remove(code string, rm *Room) {
	r.mu.Lock()
	if r.rooms[code] == rm {
		delete(r.rooms, code)
	}
	r.mu.Unlock()
}

// List returns the live rooms ordered by code.
func (r *Registry) List() []*Room {
	r.mu.RLock()
	out := make([]*Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		if !rm.Closed() {
			out = append(out, rm)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].code < out[j].code })
	return out
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	return len(r.List())
}

// Shutdown stops every room and clears the registry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[string]*Room)
	r.mu.Unlock()

	for _, rm := range rooms {
		rm.Stop()
	}
	log.Info().Int("rooms", len(rooms)).Msg("room registry shut down")
}
