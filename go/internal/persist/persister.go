// Package persist is the write-behind queue between live rooms and the
// durable store. Jobs for one code run in order on one shard; a failed job is
// reported, parked and retried by the expiration sweep. While a code has a
// parked job every later job for it is parked behind it, so retries never
// reorder the writes of one code.
package persist

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Persister runs durable writes off the broadcast path.
type Persister struct {
	writer    Writer
	cache     Cache
	config    Config
	clock     clockwork.Clock
	onFailure FailureFunc
	recorder  Recorder

	shards []chan Job
	seq    atomic.Uint64

	// parkedMu guards parked, blocked and forgotten. Enqueue sends to a shard
	// while holding it so a retry pass and new jobs cannot interleave.
	parkedMu sync.Mutex
	parked   []Job
	// blocked counts parked jobs per code.
	blocked map[string]int
	// forgotten holds, per expired code, the last sequence issued before
	// Forget; queued jobs at or below it are dropped.
	forgotten map[string]uint64

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Persister.
type Option func(*Persister)

func WithCache(c Cache) Option { return func(p *Persister) { p.cache = c } }
func WithClock(c clockwork.Clock) Option { return func(p *Persister) { p.clock = c } }
func WithRecorder(r Recorder) Option { return func(p *Persister) { p.recorder = r } }
func OnFailure(f FailureFunc) Option { return func(p *Persister) { p.onFailure = f } }

func New(writer Writer, cfg Config, opts ...Option) *Persister {
	def := DefaultConfig()
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxParked <= 0 {
		cfg.MaxParked = def.MaxParked
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	p := &Persister{
		writer:    writer,
		config:    cfg,
		clock:     clockwork.NewRealClock(),
		blocked:   make(map[string]int),
		forgotten: make(map[string]uint64),
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.shards = make([]chan Job, cfg.Shards)
	for i := range p.shards {
		p.shards[i] = make(chan Job, cfg.QueueSize)
	}
	return p
}

// SetFailureHandler replaces the failure callback. It must be called before Start.
func (p *Persister) SetFailureHandler(f FailureFunc) { p.onFailure = f }

func (p *Persister) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("persister already running")
	}
	p.running = true
	p.mu.Unlock()

	for i, ch := range p.shards {
		p.wg.Add(1)
		go p.runShard(ctx, i, ch)
	}

	log.Info().
		Int("shards", len(p.shards)).
		Int("max_retries", p.config.MaxRetries).
		Msg("persister started")
	return nil
}

// Stop drains queued jobs and waits for the shards to exit.
func (p *Persister) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("persister not running")
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	log.Info().Int("parked", p.Parked()).Msg("persister stopped")
	return nil
}

func (p *Persister) shardFor(code string) chan Job {
	return p.shards[xxhash.Sum64String(code)%uint64(len(p.shards))]
}

// Enqueue hands a job to the shard of its code. It never blocks; a full
// shard parks the job and reports ErrQueueFull. A job for a code that has
// parked jobs is parked behind them.
func (p *Persister) Enqueue(job Job) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Seq == 0 {
		job.Seq = p.seq.Add(1)
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = p.clock.Now()
	}

	p.parkedMu.Lock()
	if p.barred(job) {
		n := p.parkLocked(job)
		p.parkedMu.Unlock()
		p.recordParked(n)
		return
	}
	sent := p.sendLocked(job)
	p.parkedMu.Unlock()

	if !sent {
		log.Warn().
			Str("access_code", job.Code).
			Str("op", string(job.Op)).
			Msg("persist shard full, parking job")
		p.fail(job, ErrQueueFull)
	}
}

// sendLocked offers job to its shard without blocking. parkedMu must be held.
func (p *Persister) sendLocked(job Job) bool {
	select {
	case p.shardFor(job.Code) <- job:
		return true
	default:
		return false
	}
}

// barred reports whether job must wait behind parked jobs of its code.
// Snapshots carry the whole room state and are never parked. parkedMu must
// be held.
func (p *Persister) barred(job Job) bool {
	return job.Op != OpSnapshot && p.blocked[job.Code] > 0
}

func (p *Persister) runShard(ctx context.Context, shard int, ch chan Job) {
	defer p.wg.Done()
	for {
		select {
		case job := <-ch:
			p.process(ctx, job)
		case <-ctx.Done():
			return
		case <-p.stopChan:
			for {
				select {
				case job := <-ch:
					p.process(ctx, job)
				default:
					log.Debug().Int("shard", shard).Msg("persist shard drained")
					return
				}
			}
		}
	}
}

func (p *Persister) process(ctx context.Context, job Job) {
	p.parkedMu.Lock()
	if job.Seq <= p.forgotten[job.Code] {
		p.parkedMu.Unlock()
		log.Debug().
			Str("access_code", job.Code).
			Str("op", string(job.Op)).
			Msg("dropping write for expired room")
		return
	}
	// A job queued before an earlier job of its code failed still waits for it.
	if p.barred(job) {
		n := p.parkLocked(job)
		p.parkedMu.Unlock()
		p.recordParked(n)
		return
	}
	p.parkedMu.Unlock()

	start := p.clock.Now()
	err := p.writeWithRetry(ctx, job)
	if p.recorder != nil {
		p.recorder.ObservePersist(string(job.Op), err, p.clock.Since(start))
	}
	if err != nil {
		p.fail(job, err)
	}
}

func (p *Persister) writeWithRetry(ctx context.Context, job Job) error {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.clock.After(p.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := p.write(ctx, job); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("access_code", job.Code).
				Str("op", string(job.Op)).
				Int("attempt", attempt+1).
				Msg("durable write failed")
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", p.config.MaxRetries+1, lastErr)
}

func (p *Persister) write(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.WriteTimeout)
	defer cancel()

	switch job.Op {
	case OpMatchPatch:
		return p.writer.UpdateMatch(ctx, job.Code, job.Patch)
	case OpOverlay:
		if job.Overlay == nil {
			return fmt.Errorf("overlay job without overlay op")
		}
		o := job.Overlay
		switch o.Behavior {
		case "add":
			return p.writer.InsertDisplaySetting(ctx, o.Setting)
		case "update":
			return p.writer.UpdateDisplaySetting(ctx, o.PrevCodeLogo, o.Setting)
		case "remove":
			return p.writer.DeleteDisplaySetting(ctx, job.Code, o.Setting.Type, o.PrevCodeLogo)
		}
		return fmt.Errorf("unknown overlay behavior %q", o.Behavior)
	case OpFirstDisplay:
		set, err := p.writer.MarkFirstDisplay(ctx, job.Code, job.ExpiredAt)
		if err != nil {
			return err
		}
		if !set {
			log.Debug().Str("access_code", job.Code).Msg("session deadline already set durably")
		}
		return nil
	case OpRoster:
		return p.writer.SyncRoster(ctx, job.Code, job.Clients, job.Displays)
	case OpSnapshot:
		if p.cache == nil {
			return nil
		}
		return p.cache.Put(ctx, job.Code, job.Snapshot)
	}
	return fmt.Errorf("unknown persist op %q", job.Op)
}

// Forget drops every parked and queued job of an expired code. Jobs enqueued
// afterwards run normally.
func (p *Persister) Forget(code string) {
	p.parkedMu.Lock()
	p.forgotten[code] = p.seq.Load()
	dropped := p.blocked[code]
	delete(p.blocked, code)
	if dropped > 0 {
		kept := p.parked[:0]
		for _, job := range p.parked {
			if job.Code != code {
				kept = append(kept, job)
			}
		}
		p.parked = kept
	}
	n := len(p.parked)
	p.parkedMu.Unlock()

	if dropped > 0 {
		p.recordParked(n)
		log.Info().Str("access_code", code).Int("jobs", dropped).Msg("dropped parked writes for expired room")
	}
}

// parkLocked appends job to the parked list and returns its new length.
// parkedMu must be held.
func (p *Persister) parkLocked(job Job) int {
	if len(p.parked) >= p.config.MaxParked {
		dropped := p.parked[0]
		p.parked = p.parked[1:]
		p.unblockLocked(dropped.Code)
		log.Error().
			Str("access_code", dropped.Code).
			Str("op", string(dropped.Op)).
			Msg("parked job limit reached, dropping oldest")
	}
	p.parked = append(p.parked, job)
	p.blocked[job.Code]++
	return len(p.parked)
}

func (p *Persister) unblockLocked(code string) {
	if p.blocked[code] <= 1 {
		delete(p.blocked, code)
		return
	}
	p.blocked[code]--
}

func (p *Persister) recordParked(n int) {
	if p.recorder != nil {
		p.recorder.SetPersistParked(n)
	}
}

func (p *Persister) fail(job Job, err error) {
	job.Attempts++
	if job.Op != OpSnapshot {
		p.parkedMu.Lock()
		if job.Seq <= p.forgotten[job.Code] {
			p.parkedMu.Unlock()
			log.Debug().Err(err).Str("access_code", job.Code).Msg("write for expired room failed, dropping")
			return
		}
		n := p.parkLocked(job)
		p.parkedMu.Unlock()
		p.recordParked(n)
	}

	log.Error().
		Err(err).
		Str("access_code", job.Code).
		Str("op", string(job.Op)).
		Str("job_id", job.ID.String()).
		Msg("durable write failed, job parked")

	if p.onFailure != nil && job.Attempts == 1 {
		p.onFailure(job, err)
	}
}

// RetryFailed hands every parked job back to its shard in original order
// and returns how many were handed back. Jobs that do not fit stay parked, as
// does everything behind them for the same code.
func (p *Persister) RetryFailed(ctx context.Context) int {
	p.parkedMu.Lock()
	jobs := p.parked
	p.parked = nil
	p.blocked = make(map[string]int)

	sent := 0
	for _, job := range jobs {
		if ctx.Err() != nil || p.barred(job) || !p.sendLocked(job) {
			p.parkLocked(job)
			continue
		}
		sent++
	}
	n := len(p.parked)
	p.parkedMu.Unlock()
	p.recordParked(n)

	if sent > 0 {
		log.Info().Int("jobs", sent).Int("parked", n).Msg("re-enqueued parked durable writes")
	}
	return sent
}

// Parked is the number of jobs waiting for a retry.
func (p *Persister) Parked() int {
	p.parkedMu.Lock()
	defer p.parkedMu.Unlock()
	return len(p.parked)
}
