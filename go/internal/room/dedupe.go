package room

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultDedupeWindow is how long a discrete event fingerprint is remembered.
const DefaultDedupeWindow = time.Second

// Deduper remembers recent fingerprints of discrete events. It is owned by a
// room goroutine and is not safe for concurrent use.
type Deduper struct {
	clock  clockwork.Clock
	window time.Duration
	seen   map[string]time.Time
}

func NewDeduper(clock clockwork.Clock, window time.Duration) *Deduper {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &Deduper{clock: clock, window: window, seen: make(map[string]time.Time)}
}

// Seen reports whether fp was recorded inside the window. An empty
// fingerprint is never a duplicate.
func (d *Deduper) Seen(fp string) bool {
	if fp == "" {
		return false
	}
	now := d.clock.Now()
	d.prune(now)
	at, ok := d.seen[fp]
	return ok && now.Sub(at) < d.window
}

// Record remembers fp from now until the window passes.
func (d *Deduper) Record(fp string) {
	if fp == "" {
		return
	}
	d.seen[fp] = d.clock.Now()
}

func (d *Deduper) prune(now time.Time) {
	for fp, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, fp)
		}
	}
}
