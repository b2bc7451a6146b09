package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
)

const (
	// DefaultInterval matches the poller cadence of the gallery publisher.
	DefaultInterval = 20 * time.Second
	// DefaultFetchTimeout bounds a single fetch, including one still in flight at shutdown.
	DefaultFetchTimeout = 15 * time.Second
)

// Status describes the refresh health of one gallery.
type Status struct {
	ID          ID        `json:"id"`
	Count       int       `json:"count"`
	FetchedAt   time.Time `json:"fetched_at"`
	LastError   string    `json:"last_error,omitempty"`
	Failures    int       `json:"consecutive_failures"`
	LastAttempt time.Time `json:"last_attempt"`
}

// Store holds the current snapshot of each gallery. Reads are lock-free; the
// refresh task publishes whole snapshots with an atomic pointer swap.
type Store struct {
	source       Source
	snapshots    map[ID]*atomic.Pointer[Snapshot] // keys fixed at construction
	interval     time.Duration
	fetchTimeout time.Duration
	mirrorDir    string
	logger       *slog.Logger
	kick         chan struct{}
	now          func() time.Time

	statusMu sync.Mutex
	status   map[ID]*Status
}

// Option configures a Store.
type Option func(*Store)

func WithInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithMirrorDir keeps a local copy of every successfully fetched blob.
func WithMirrorDir(dir string) Option {
	return func(s *Store) { s.mirrorDir = dir }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store serving empty family and criminal galleries until the first refresh.
func NewStore(source Source, opts ...Option) *Store {
	s := &Store{
		source:       source,
		snapshots:    make(map[ID]*atomic.Pointer[Snapshot], len(IDs)),
		interval:     DefaultInterval,
		fetchTimeout: DefaultFetchTimeout,
		logger:       slog.Default(),
		kick:         make(chan struct{}, 1),
		now:          time.Now,
		status:       make(map[ID]*Status, len(IDs)),
	}
	for _, id := range IDs {
		p := &atomic.Pointer[Snapshot]{}
		p.Store(emptySnapshot)
		s.snapshots[id] = p
		s.status[id] = &Status{ID: id}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the current snapshot of a gallery. It never blocks and never returns nil;
// an unknown ID yields an empty snapshot.
func (s *Store) Read(id ID) *Snapshot {
	p, ok := s.snapshots[id]
	if !ok {
		return emptySnapshot
	}
	return p.Load()
}

// Refresh fetches and decodes one gallery and, only if both succeed, replaces its snapshot.
// On failure the previous snapshot stays in place.
func (s *Store) Refresh(ctx context.Context, id ID) (*Snapshot, error) {
	p, ok := s.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGallery, id)
	}

	attempt := s.now()
	snap, raw, err := s.fetch(ctx, id, attempt)
	if err != nil {
		s.recordFailure(id, attempt, err)
		return nil, err
	}

	p.Store(snap)
	s.recordSuccess(id, snap, attempt)
	s.mirror(raw)
	return snap, nil
}

func (s *Store) fetch(ctx context.Context, id ID, at time.Time) (*Snapshot, Blob, error) {
	b, err := s.source.Fetch(ctx, id)
	if err != nil {
		return nil, Blob{}, fmt.Errorf("fetch %s gallery: %w", id, err)
	}
	snap, err := Decode(b.Path, b.Data, at)
	if err != nil {
		return nil, Blob{}, fmt.Errorf("decode %s gallery: %w", id, err)
	}
	return snap, b, nil
}

// RefreshAll refreshes every gallery concurrently. A failure or panic in one
// gallery does not affect the other; all errors are joined.
func (s *Store) RefreshAll(ctx context.Context) error {
	errs := make([]error, len(IDs))

	var wg conc.WaitGroup
	for i, id := range IDs {
		wg.Go(func() {
			_, errs[i] = s.Refresh(ctx, id)
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		errs = append(errs, fmt.Errorf("gallery refresh panicked: %w", r.AsError()))
	}
	return errors.Join(errs...)
}

// Trigger asks the running refresh loop for an early cycle. It never blocks.
func (s *Store) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run refreshes all galleries immediately and then on every interval until ctx is done.
// A cycle already in flight at cancellation is allowed to finish (bounded by the fetch
// timeout) so the store is never left mid-update.
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("gallery poller started", "interval", s.interval)
	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("gallery poller stopped")
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.kick:
			s.cycle(ctx)
		}
	}
}

func (s *Store) cycle(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
	defer cancel()

	if err := s.RefreshAll(fetchCtx); err != nil {
		s.logger.Warn("gallery refresh failed, serving previous snapshot", "error", err)
	}
	s.logger.Debug("galleries loaded",
		"family", s.Read(Family).Len(),
		"criminal", s.Read(Criminal).Len(),
	)
}

// LoadMirror seeds the store from the local mirror directory so recognition can
// start before the remote source answers. Missing files are not an error.
func (s *Store) LoadMirror(paths map[ID]string) error {
	if s.mirrorDir == "" {
		return nil
	}
	var errs []error
	for _, id := range IDs {
		name, ok := paths[id]
		if !ok {
			continue
		}
		path := filepath.Join(s.mirrorDir, filepath.Base(name))
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		snap, err := Decode(path, data, info.ModTime())
		if err != nil {
			errs = append(errs, fmt.Errorf("mirror %s: %w", path, err))
			continue
		}
		s.snapshots[id].Store(snap)
		s.recordSuccess(id, snap, info.ModTime())
		s.logger.Info("gallery seeded from mirror", "gallery", id, "count", snap.Len(), "path", path)
	}
	return errors.Join(errs...)
}

// mirror writes the raw blob next to the others via a temp file and rename.
func (s *Store) mirror(b Blob) {
	if s.mirrorDir == "" {
		return
	}
	if err := os.MkdirAll(s.mirrorDir, 0o755); err != nil {
		s.logger.Warn("gallery mirror unavailable", "dir", s.mirrorDir, "error", err)
		return
	}
	dst := filepath.Join(s.mirrorDir, filepath.Base(b.Path))
	if abs, err := filepath.Abs(b.Path); err == nil {
		if absDst, err := filepath.Abs(dst); err == nil && abs == absDst {
			return
		}
	}
	tmp, err := os.CreateTemp(s.mirrorDir, ".gallery-*")
	if err != nil {
		s.logger.Warn("gallery mirror write failed", "path", dst, "error", err)
		return
	}
	_, werr := tmp.Write(b.Data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		s.logger.Warn("gallery mirror write failed", "path", dst, "error", err)
		return
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		s.logger.Warn("gallery mirror write failed", "path", dst, "error", err)
		return
	}
	s.logger.Debug("gallery mirrored", "path", dst)
}

// Status returns a copy of the refresh status of every gallery.
func (s *Store) Status() []Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	out := make([]Status, 0, len(IDs))
	for _, id := range IDs {
		out = append(out, *s.status[id])
	}
	return out
}

func (s *Store) recordSuccess(id ID, snap *Snapshot, at time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status[id]
	st.Count = snap.Len()
	st.FetchedAt = snap.FetchedAt()
	st.LastAttempt = at
	st.LastError = ""
	st.Failures = 0
}

func (s *Store) recordFailure(id ID, at time.Time, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status[id]
	st.LastAttempt = at
	st.LastError = err.Error()
	st.Failures++
}
