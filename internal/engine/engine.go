// Package engine turns each detected face into the side effects that should fire
// now: evidence capture, audit records, voice announcements and alerts. It reads
// the galleries and throttle state but performs no I/O itself.
package engine

import (
	"fmt"
	"time"

	"github.com/andresmejia3/sentinel-home/internal/gallery"
	"github.com/andresmejia3/sentinel-home/internal/match"
	"github.com/andresmejia3/sentinel-home/internal/throttle"
	"github.com/andresmejia3/sentinel-home/internal/types"
	"github.com/google/uuid"
)

const (
	AlertCriminalDetected = "criminal_detected"
	CriminalWarning       = "Known criminal detected outside the home. Should I alert the authorities?"
)

// WelcomeText is the announcement for a recognized family member.
func WelcomeText(name string) string {
	return "Welcome home " + name
}

// Galleries is the read side of the gallery store.
type Galleries interface {
	Read(id gallery.ID) *gallery.Snapshot
}

// Config holds the tunables of the decision policy.
type Config struct {
	Threshold        float64
	AnnounceCooldown time.Duration
	CaptureCooldown  time.Duration
}

// DefaultConfig returns the stock policy: 0.50 threshold, 10s announce and 60s capture cooldowns.
func DefaultConfig() Config {
	return Config{
		Threshold:        match.DefaultThreshold,
		AnnounceCooldown: throttle.DefaultAnnounceCooldown,
		CaptureCooldown:  throttle.DefaultCaptureCooldown,
	}
}

// Engine decides the actions for one detected face at a time. It is safe for
// concurrent use by several recognition loops.
type Engine struct {
	galleries Galleries
	throttle  *throttle.Registry
	unknown   Keyer
	cfg       Config
	now       func() time.Time
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithKeyer replaces the unknown-face keyer (a ClusterKeyer by default).
func WithKeyer(k Keyer) Option {
	return func(e *Engine) { e.unknown = k }
}

// WithClock sets the time source used when a face carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs sets the event id generator.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New builds an engine. Zero config fields fall back to DefaultConfig values.
func New(galleries Galleries, registry *throttle.Registry, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.AnnounceCooldown <= 0 {
		cfg.AnnounceCooldown = def.AnnounceCooldown
	}
	if cfg.CaptureCooldown <= 0 {
		cfg.CaptureCooldown = def.CaptureCooldown
	}
	if registry == nil {
		registry = throttle.NewRegistry(0)
	}

	e := &Engine{
		galleries: galleries,
		throttle:  registry,
		unknown:   NewClusterKeyer(cfg.Threshold, 0),
		cfg:       cfg,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify returns the verdict for an embedding against the current galleries.
func (e *Engine) Classify(emb types.Embedding) match.Verdict {
	family := e.galleries.Read(gallery.Family)
	criminal := e.galleries.Read(gallery.Criminal)
	return match.Classify(emb, family, criminal, e.cfg.Threshold)
}

// Process classifies one face and returns the actions to execute, always in the order
// Capture, LogVisit, Announce, RaiseAlert. The face's SeenAt is used as the event time
// when set. The capture's own visit record travels inside the Capture action.
func (e *Engine) Process(face types.DetectedFace) []Action {
	now := face.SeenAt
	if now.IsZero() {
		now = e.now()
	}
	v := e.Classify(face.Embedding)
	return e.decide(face, v, now)
}

func (e *Engine) decide(face types.DetectedFace, v match.Verdict, now time.Time) []Action {
	id := e.newID()
	var actions []Action

	switch v.Kind {
	case match.Family:
		actions = append(actions, e.visit(id, face, v, now, fmt.Sprintf("dist=%.4f", v.Distance)))
		if e.throttle.Admit(v.Name, throttle.Announce, now, e.cfg.AnnounceCooldown) {
			actions = append(actions, Announce{EventID: id, Text: WelcomeText(v.Name)})
		}

	case match.Criminal:
		if e.throttle.Admit(v.Name, throttle.Capture, now, e.cfg.CaptureCooldown) {
			actions = append(actions, e.capture(id, v.Name, face, v, now))
		}
		if e.throttle.Admit(v.Name, throttle.Announce, now, e.cfg.AnnounceCooldown) {
			actions = append(actions,
				e.visit(id, face, v, now, fmt.Sprintf("dist=%.4f", v.Distance)),
				Announce{EventID: id, Text: CriminalWarning},
				RaiseAlert{
					EventID:   id,
					AlertType: AlertCriminalDetected,
					Message:   fmt.Sprintf("%s detected at %s", v.Name, now.Format(time.RFC3339)),
					At:        now,
				},
			)
		}

	default:
		key := e.unknown.Key(face)
		if e.throttle.Admit(key, throttle.Capture, now, e.cfg.CaptureCooldown) {
			actions = append(actions, e.capture(id, key, face, v, now))
		}
	}
	return actions
}

func (e *Engine) capture(id, key string, face types.DetectedFace, v match.Verdict, now time.Time) Capture {
	notes := "Photo captured"
	if v.Kind != match.Unknown {
		notes = fmt.Sprintf("Photo captured dist=%.4f", v.Distance)
	}
	return Capture{
		EventID:      id,
		Key:          key,
		Frame:        face.SourceFrame,
		Box:          face.Box,
		FilenameHint: fmt.Sprintf("%s_%d.jpg", key, now.Unix()),
		Visit:        e.visit(id, face, v, now, notes),
	}
}

func (e *Engine) visit(id string, face types.DetectedFace, v match.Verdict, now time.Time, notes string) LogVisit {
	return LogVisit{
		EventID:        id,
		Name:           v.Name,
		Classification: v.Kind.String(),
		Notes:          notes,
		Distance:       v.Distance,
		Embedding:      face.Embedding,
		At:             now,
	}
}
