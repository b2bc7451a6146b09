package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/sentinel-home/internal/gallery"
	"github.com/andresmejia3/sentinel-home/internal/throttle"
	"github.com/andresmejia3/sentinel-home/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

type fakeGalleries struct {
	mu    sync.Mutex
	snaps map[gallery.ID]*gallery.Snapshot
}

func (f *fakeGalleries) Read(id gallery.ID) *gallery.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.snaps[id]; ok {
		return s
	}
	s, _ := gallery.NewSnapshot(nil, nil, time.Time{})
	return s
}

func (f *fakeGalleries) set(t *testing.T, id gallery.ID, names []string, embs ...types.Embedding) {
	t.Helper()
	raw := make([][]float64, len(embs))
	for i, e := range embs {
		raw[i] = e
	}
	s, err := gallery.NewSnapshot(raw, names, t0)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snaps == nil {
		f.snaps = map[gallery.ID]*gallery.Snapshot{}
	}
	f.snaps[id] = s
}

func unit(i int, v float64) types.Embedding {
	e := make(types.Embedding, types.EmbeddingDim)
	e[i] = v
	return e
}

func face(e types.Embedding, at time.Time) types.DetectedFace {
	return types.DetectedFace{
		Embedding:   e,
		Box:         types.Box{Top: 40, Right: 120, Bottom: 140, Left: 20},
		SourceFrame: []byte{0xFF, 0xD8, 0xFF, 0xD9},
		SeenAt:      at,
	}
}

func kinds(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Kind()
	}
	return out
}

func newTestEngine(g Galleries) *Engine {
	var n atomic.Int64
	return New(g, throttle.NewRegistry(0), DefaultConfig(),
		WithIDs(func() string { return fmt.Sprintf("evt-%d", n.Add(1)) }),
		WithClock(func() time.Time { return t0 }),
	)
}

func TestProcess_FamilyMember(t *testing.T) {
	g := &fakeGalleries{}
	alice := unit(0, 1)
	g.set(t, gallery.Family, []string{"Alice"}, alice)
	e := newTestEngine(g)

	actions := e.Process(face(alice, t0))
	require.Equal(t, []string{"log_visit", "announce"}, kinds(actions))

	visit := actions[0].(LogVisit)
	assert.Equal(t, "Alice", visit.Name)
	assert.Equal(t, "family", visit.Classification)
	assert.InDelta(t, 0.0, visit.Distance, 1e-12)
	assert.Equal(t, "Welcome home Alice", actions[1].(Announce).Text)
	assert.Equal(t, visit.EventID, actions[1].Event())

	// Every sighting is logged; the welcome waits out its cooldown.
	again := e.Process(face(alice, t0.Add(3*time.Second)))
	assert.Equal(t, []string{"log_visit"}, kinds(again))

	later := e.Process(face(alice, t0.Add(11*time.Second)))
	assert.Equal(t, []string{"log_visit", "announce"}, kinds(later))
}

func TestProcess_Criminal(t *testing.T) {
	g := &fakeGalleries{}
	bob := unit(2, 1)
	g.set(t, gallery.Criminal, []string{"Bob"}, bob)
	e := newTestEngine(g)

	seen := unit(2, 1)
	seen[7] = 0.3 // 0.3 from Bob

	first := e.Process(face(seen, t0))
	require.Equal(t, []string{"capture", "log_visit", "announce", "raise_alert"}, kinds(first))

	capture := first[0].(Capture)
	assert.Equal(t, "Bob", capture.Key)
	assert.Equal(t, fmt.Sprintf("Bob_%d.jpg", t0.Unix()), capture.FilenameHint)
	assert.Equal(t, "criminal", capture.Visit.Classification)
	assert.Equal(t, "Bob", capture.Visit.Name)
	assert.Contains(t, capture.Visit.Notes, "Photo captured dist=0.3000")
	assert.NotEmpty(t, capture.Frame)

	assert.Equal(t, CriminalWarning, first[2].(Announce).Text)
	alert := first[3].(RaiseAlert)
	assert.Equal(t, AlertCriminalDetected, alert.AlertType)
	assert.Equal(t, "Bob detected at "+t0.Format(time.RFC3339), alert.Message)

	assert.Empty(t, e.Process(face(seen, t0.Add(5*time.Second))), "both cooldowns active")

	// Announce re-arms before capture does.
	mid := e.Process(face(seen, t0.Add(15*time.Second)))
	assert.Equal(t, []string{"log_visit", "announce", "raise_alert"}, kinds(mid))

	late := e.Process(face(seen, t0.Add(61*time.Second)))
	assert.Equal(t, []string{"capture", "log_visit", "announce", "raise_alert"}, kinds(late))
}

func TestProcess_UnknownFace(t *testing.T) {
	g := &fakeGalleries{}
	g.set(t, gallery.Family, []string{"Alice"}, unit(0, 1))
	e := newTestEngine(g)

	stranger := unit(9, 1)
	first := e.Process(face(stranger, t0))
	require.Equal(t, []string{"capture"}, kinds(first))

	c := first[0].(Capture)
	assert.Equal(t, "unknown", c.Visit.Classification)
	assert.Empty(t, c.Visit.Name)
	assert.Equal(t, "Photo captured", c.Visit.Notes)

	// Same stranger moved across the frame: still the same key.
	moved := face(stranger, t0.Add(20*time.Second))
	moved.Box = types.Box{Top: 300, Right: 500, Bottom: 420, Left: 380}
	assert.Empty(t, e.Process(moved))

	// A different stranger gets their own capture.
	other := e.Process(face(unit(20, 1), t0.Add(21*time.Second)))
	assert.Equal(t, []string{"capture"}, kinds(other))
	assert.NotEqual(t, c.Key, other[0].(Capture).Key)

	assert.Equal(t, []string{"capture"}, kinds(e.Process(face(stranger, t0.Add(61*time.Second)))))
}

func TestProcess_FamilyTakesPriority(t *testing.T) {
	g := &fakeGalleries{}
	twin := unit(4, 1)
	g.set(t, gallery.Family, []string{"Alice"}, twin)
	g.set(t, gallery.Criminal, []string{"Mallory"}, twin)
	e := newTestEngine(g)

	actions := e.Process(face(twin, t0))
	assert.Equal(t, []string{"log_visit", "announce"}, kinds(actions))
}

func TestProcess_ReadsCurrentGalleries(t *testing.T) {
	g := &fakeGalleries{}
	e := newTestEngine(g)
	carol := unit(5, 1)

	assert.Equal(t, "unknown", e.Classify(carol).Kind.String())

	g.set(t, gallery.Family, []string{"Carol"}, carol)
	v := e.Classify(carol)
	assert.Equal(t, "family", v.Kind.String())
	assert.Equal(t, "Carol", v.Name)
}

func TestProcess_UsesClockWhenFaceHasNoTime(t *testing.T) {
	g := &fakeGalleries{}
	e := newTestEngine(g)

	actions := e.Process(face(unit(3, 1), time.Time{}))
	require.Len(t, actions, 1)
	assert.Equal(t, t0, actions[0].(Capture).Visit.At)
}

func TestProcess_ConcurrentSightingsCaptureOnce(t *testing.T) {
	g := &fakeGalleries{}
	bob := unit(2, 1)
	g.set(t, gallery.Criminal, []string{"Bob"}, bob)
	e := newTestEngine(g)

	var captures, alerts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, a := range e.Process(face(bob, t0)) {
				switch a.(type) {
				case Capture:
					captures.Add(1)
				case RaiseAlert:
					alerts.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), captures.Load())
	assert.Equal(t, int32(1), alerts.Load())
}

func TestNew_FillsDefaults(t *testing.T) {
	e := New(&fakeGalleries{}, nil, Config{})
	assert.Equal(t, DefaultConfig(), e.cfg)
	assert.NotEmpty(t, e.newID())
}
