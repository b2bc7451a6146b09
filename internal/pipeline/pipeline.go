// Package pipeline is the live recognition loop: MJPEG frames in, detector, engine
// decisions, dispatched side effects out.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/sentinel-home/internal/engine"
	"github.com/andresmejia3/sentinel-home/internal/types"
	"github.com/andresmejia3/sentinel-home/internal/utils"
	"github.com/andresmejia3/sentinel-home/internal/worker"
	"github.com/sourcegraph/conc/pool"
)

const maxFrameSize = 16 * 1024 * 1024

// Detector finds faces in one JPEG frame.
type Detector interface {
	Detect(frame []byte) ([]types.DetectedFace, error)
}

// Decider turns a face into actions.
type Decider interface {
	Process(face types.DetectedFace) []engine.Action
}

// Dispatcher executes one decision's actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, actions []engine.Action) error
}

// Stats counts what a run did.
type Stats struct {
	Frames    int64
	Processed int64
	Faces     int64
	Actions   int64
	Failures  int64
}

// Pipeline wires a detector, a decider and a dispatcher together.
type Pipeline struct {
	detector   Detector
	decider    Decider
	dispatcher Dispatcher
	nth        int
	dispatches int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNthFrame processes only every n-th frame.
func WithNthFrame(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.nth = n
		}
	}
}

// WithDispatchers bounds how many decisions are dispatched concurrently.
func WithDispatchers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.dispatches = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New builds a pipeline.
func New(detector Detector, decider Decider, dispatcher Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector:   detector,
		decider:    decider,
		dispatcher: dispatcher,
		nth:        1,
		dispatches: 4,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run reads concatenated JPEG frames from r until EOF or cancellation. Cancellation is
// observed between frames; decisions already handed to the dispatcher complete.
// Detector-reported errors skip the frame, a broken detector ends the run.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	var actions, failures atomic.Int64

	dispatch := pool.New().WithMaxGoroutines(p.dispatches)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxFrameSize)
	scanner.Split(utils.SplitJpeg)

	var runErr error
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		stats.Frames++
		if (stats.Frames-1)%int64(p.nth) != 0 {
			continue
		}

		frame := append([]byte(nil), scanner.Bytes()...)
		seenAt := p.now()
		faces, err := p.detector.Detect(frame)
		if err != nil {
			if errors.Is(err, worker.ErrDetector) {
				p.logger.Warn("detector rejected frame", "frame", stats.Frames, "error", err)
				failures.Add(1)
				continue
			}
			// A cancelled run kills the detector mid-frame; that is a shutdown, not a failure.
			if ctx.Err() == nil {
				runErr = fmt.Errorf("detector failed at frame %d: %w", stats.Frames, err)
			}
			break
		}
		stats.Processed++

		for _, face := range faces {
			stats.Faces++
			face.SourceFrame = frame
			face.FrameIndex = int(stats.Frames)
			face.SeenAt = seenAt

			decided := p.decider.Process(face)
			if len(decided) == 0 {
				continue
			}
			actions.Add(int64(len(decided)))
			dispatch.Go(func() {
				// Dispatch outlives cancellation so admitted decisions are not half-executed.
				if err := p.dispatcher.Dispatch(context.WithoutCancel(ctx), decided); err != nil {
					failures.Add(1)
				}
			})
		}
	}
	if runErr == nil {
		if err := scanner.Err(); err != nil {
			runErr = fmt.Errorf("reading frames: %w", err)
		}
	}

	dispatch.Wait()
	stats.Actions = actions.Load()
	stats.Failures = failures.Load()
	return stats, runErr
}
