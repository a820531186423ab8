package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	fail    bool
	patches  []models.MatchPatch
	inserts  []models.DisplaySetting
	overlays map[string]bool
	firsts   map[string]time.Time
	rosters  map[string][2][]string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		overlays: map[string]bool{},
		firsts:   map[string]time.Time{},
		rosters:  map[string][2][]string{},
	}
}

func (f *fakeWriter) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeWriter) err() error {
	if f.fail {
		return errors.New("db down")
	}
	return nil
}

func (f *fakeWriter) UpdateMatch(_ context.Context, _ string, p models.MatchPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.patches = append(f.patches, p)
	return nil
}

func (f *fakeWriter) InsertDisplaySetting(_ context.Context, s models.DisplaySetting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.inserts = append(f.inserts, s)
	f.overlays[s.CodeLogo] = true
	return nil
}

func (f *fakeWriter) UpdateDisplaySetting(_ context.Context, prev string, s models.DisplaySetting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	delete(f.overlays, prev)
	f.overlays[s.CodeLogo] = true
	return nil
}

func (f *fakeWriter) DeleteDisplaySetting(_ context.Context, _ string, _ models.OverlayType, codeLogo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	delete(f.overlays, codeLogo)
	return nil
}

func (f *fakeWriter) MarkFirstDisplay(_ context.Context, code string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.firsts[code]; ok {
		return false, nil
	}
	f.firsts[code] = at
	return true, nil
}

func (f *fakeWriter) SyncRoster(_ context.Context, code string, clients, displays []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err(); err != nil {
		return err
	}
	f.rosters[code] = [2][]string{clients, displays}
	return nil
}

func (f *fakeWriter) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patches)
}

func (f *fakeWriter) overlayRows() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []string
	for logo := range f.overlays {
		rows = append(rows, logo)
	}
	return rows
}

func intp(v int) *int { return &v }

func startPersister(t *testing.T, p *Persister) {
	t.Helper()
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop() })
}

func TestJobsForOneCodeStayOrdered(t *testing.T) {
	w := newFakeWriter()
	p := New(w, Config{Shards: 4})
	startPersister(t, p)

	for i := 1; i <= 50; i++ {
		p.Enqueue(Job{Code: "ABCDE", Op: OpMatchPatch, Patch: models.MatchPatch{HomeScore: intp(i)}})
	}
	require.Eventually(t, func() bool { return w.patchCount() == 50 }, time.Second, 5*time.Millisecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	for i, patch := range w.patches {
		assert.Equal(t, i+1, *patch.HomeScore)
	}
}

func TestFailedJobIsReportedParkedAndRetried(t *testing.T) {
	w := newFakeWriter()
	w.setFail(true)

	var mu sync.Mutex
	var reported []Job
	p := New(w, Config{Shards: 1}, OnFailure(func(job Job, err error) {
		mu.Lock()
		reported = append(reported, job)
		mu.Unlock()
	}))
	startPersister(t, p)

	p.Enqueue(Job{Code: "ABCDE", Op: OpMatchPatch, Origin: "e1", Event: "score_update", Patch: models.MatchPatch{HomeScore: intp(1)}})
	require.Eventually(t, func() bool { return p.Parked() == 1 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Len(t, reported, 1)
	assert.Equal(t, "e1", reported[0].Origin)
	mu.Unlock()

	// A second failure of the same job is not reported again.
	assert.Equal(t, 1, p.RetryFailed(context.Background()))
	require.Eventually(t, func() bool { return p.Parked() == 1 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Len(t, reported, 1)
	mu.Unlock()

	w.setFail(false)
	p.RetryFailed(context.Background())
	require.Eventually(t, func() bool { return w.patchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Parked())
}

func TestParkedCodeHoldsLaterJobsInOrder(t *testing.T) {
	w := newFakeWriter()
	p := New(w, Config{Shards: 1})
	startPersister(t, p)

	w.setFail(true)
	p.Enqueue(Job{Code: "ABCDE", Op: OpMatchPatch, Patch: models.MatchPatch{HomeScore: intp(1), AwayScore: intp(0)}})
	require.Eventually(t, func() bool { return p.Parked() == 1 }, time.Second, 5*time.Millisecond)

	w.setFail(false)
	p.Enqueue(Job{Code: "ABCDE", Op: OpMatchPatch, Patch: models.MatchPatch{HomeScore: intp(2)}})
	p.Enqueue(Job{Code: "OTHER", Op: OpMatchPatch, Patch: models.MatchPatch{HomeScore: intp(9)}})
	require.Eventually(t, func() bool { return w.patchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, p.Parked())

	assert.Equal(t, 2, p.RetryFailed(context.Background()))
	require.Eventually(t, func() bool { return w.patchCount() == 3 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Parked())

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, 9, *w.patches[0].HomeScore)
	assert.Equal(t, 1, *w.patches[1].HomeScore)
	assert.Equal(t, 2, *w.patches[2].HomeScore)
}

func TestRetriedOverlayAddDoesNotOutliveLaterRemove(t *testing.T) {
	w := newFakeWriter()
	p := New(w, Config{Shards: 1})
	startPersister(t, p)

	setting := models.DisplaySetting{AccessCode: "ABCDE", Type: models.OverlaySponsors, CodeLogo: "acme"}

	w.setFail(true)
	p.Enqueue(Job{Code: "ABCDE", Op: OpOverlay, Overlay: &OverlayOp{Behavior: "add", Setting: setting}})
	require.Eventually(t, func() bool { return p.Parked() == 1 }, time.Second, 5*time.Millisecond)

	w.setFail(false)
	p.Enqueue(Job{Code: "ABCDE", Op: OpOverlay, Overlay: &OverlayOp{Behavior: "remove", PrevCodeLogo: "acme", Setting: setting}})
	require.Eventually(t, func() bool { return p.Parked() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, p.RetryFailed(context.Background()))
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.inserts) == 1 && len(w.overlays) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, w.overlayRows())
	assert.Zero(t, p.Parked())
}

func TestForgetDropsParkedAndQueuedJobs(t *testing.T) {
	w := newFakeWriter()
	p := New(w, Config{Shards: 1})
	startPersister(t, p)

	w.setFail(true)
	p.Enqueue(Job{Code: "ABCDE", Op: OpRoster, Clients: []string{"admin-1"}})
	p.Enqueue(Job{Code: "OTHER", Op: OpRoster, Clients: []string{"admin-2"}})
	require.Eventually(t, func() bool { return p.Parked() == 2 }, time.Second, 5*time.Millisecond)

	p.Forget("ABCDE")
	assert.Equal(t, 1, p.Parked())

	w.setFail(false)
	assert.Equal(t, 1, p.RetryFailed(context.Background()))
	require.Eventually(t, func() bool { return rosterOf(w, "OTHER") != nil }, time.Second, 5*time.Millisecond)
	assert.Nil(t, rosterOf(w, "ABCDE"))

	// Jobs enqueued after Forget are written.
	p.Enqueue(Job{Code: "ABCDE", Op: OpRoster, Displays: []string{"d-1"}})
	require.Eventually(t, func() bool { return rosterOf(w, "ABCDE") != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"d-1"}, rosterOf(w, "ABCDE")[1])
}

func rosterOf(w *fakeWriter, code string) [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rosters[code]
	if !ok {
		return nil
	}
	return [][]string{r[0], r[1]}
}

func TestFirstDisplayAndRosterJobs(t *testing.T) {
	w := newFakeWriter()
	p := New(w, Config{})
	startPersister(t, p)

	at := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	p.Enqueue(Job{Code: "ABCDE", Op: OpFirstDisplay, ExpiredAt: at})
	p.Enqueue(Job{Code: "ABCDE", Op: OpFirstDisplay, ExpiredAt: at.Add(time.Hour)})
	p.Enqueue(Job{Code: "ABCDE", Op: OpRoster, Clients: []string{"a"}, Displays: []string{"d"}})
	p.Enqueue(Job{Code: "ABCDE", Op: OpOverlay, Overlay: &OverlayOp{
		Behavior: "add",
		Setting:  models.DisplaySetting{AccessCode: "ABCDE", Type: models.OverlaySponsors, CodeLogo: "x"},
	}})

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.inserts) == 1
	}, time.Second, 5*time.Millisecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, at, w.firsts["ABCDE"])
	assert.Equal(t, []string{"d"}, w.rosters["ABCDE"][1])
	assert.Zero(t, p.Parked())
}

func TestStopDrainsQueuedJobs(t *testing.T) {
	w := newFakeWriter()
	p := New(w, Config{Shards: 2})
	require.NoError(t, p.Start(context.Background()))

	for i := 0; i < 20; i++ {
		p.Enqueue(Job{Code: "ABCDE", Op: OpMatchPatch, Patch: models.MatchPatch{AwayScore: intp(i)}})
	}
	require.NoError(t, p.Stop())
	assert.Equal(t, 20, w.patchCount())
	assert.Error(t, p.Stop())
}
