// Package sink executes the actions decided by the engine: it stores evidence images,
// writes the audit trail and queues voice announcements. Failures are logged and
// reported but never retried; the decision that produced them stands.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andresmejia3/sentinel-home/internal/engine"
	"github.com/andresmejia3/sentinel-home/internal/store"
)

// EvidenceStore uploads a capture and returns a reference URL.
type EvidenceStore interface {
	Store(ctx context.Context, c engine.Capture) (string, error)
}

// Audit is the write side of the audit log.
type Audit interface {
	InsertVisit(ctx context.Context, v store.Visit) error
	InsertAlert(ctx context.Context, a store.Alert) error
}

// Dispatcher runs actions in the order given. Any collaborator may be nil, in which
// case its actions are skipped (a capture's visit is then logged without an image).
type Dispatcher struct {
	evidence EvidenceStore
	audit    Audit
	voice    Speaker
	logger   *slog.Logger
}

// NewDispatcher wires the sinks together.
func NewDispatcher(evidence EvidenceStore, audit Audit, voice Speaker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{evidence: evidence, audit: audit, voice: voice, logger: logger}
}

// Dispatch executes one decision's actions. The returned error joins every sink
// failure; all actions are attempted regardless.
func (d *Dispatcher) Dispatch(ctx context.Context, actions []engine.Action) error {
	var errs []error
	images := map[string]string{}

	for _, a := range actions {
		switch a := a.(type) {
		case engine.Capture:
			url, err := d.capture(ctx, a)
			if err != nil {
				d.logger.Error("evidence upload failed", "event", a.EventID, "key", a.Key, "error", err)
				errs = append(errs, fmt.Errorf("capture %s: %w", a.Key, err))
			}
			images[a.EventID] = url
			visit := a.Visit
			visit.ImageURL = url
			if err := d.logVisit(ctx, visit); err != nil {
				errs = append(errs, err)
			}

		case engine.LogVisit:
			if err := d.logVisit(ctx, a); err != nil {
				errs = append(errs, err)
			}

		case engine.Announce:
			if d.voice != nil && !d.voice.Say(a.Text) {
				d.logger.Warn("announcement dropped", "event", a.EventID)
			}

		case engine.RaiseAlert:
			if a.ImageURL == "" {
				a.ImageURL = images[a.EventID]
			}
			if err := d.raise(ctx, a); err != nil {
				errs = append(errs, err)
			}

		default:
			d.logger.Warn("unknown action", "kind", a.Kind())
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) capture(ctx context.Context, c engine.Capture) (string, error) {
	if d.evidence == nil {
		return "", nil
	}
	url, err := d.evidence.Store(ctx, c)
	if err != nil {
		return "", err
	}
	d.logger.Info("evidence stored", "event", c.EventID, "key", c.Key, "url", url)
	return url, nil
}

func (d *Dispatcher) logVisit(ctx context.Context, v engine.LogVisit) error {
	if d.audit == nil {
		return nil
	}
	err := d.audit.InsertVisit(ctx, store.Visit{
		EventID:      v.EventID,
		Name:         v.Name,
		RecognizedAs: v.Classification,
		Notes:        v.Notes,
		ImageURL:     v.ImageURL,
		Distance:     v.Distance,
		Embedding:    v.Embedding,
		CreatedAt:    v.At,
	})
	if err != nil {
		d.logger.Error("visit not recorded", "event", v.EventID, "error", err)
		return fmt.Errorf("log visit: %w", err)
	}
	return nil
}

func (d *Dispatcher) raise(ctx context.Context, a engine.RaiseAlert) error {
	d.logger.Warn("alert", "type", a.AlertType, "message", a.Message)
	if d.audit == nil {
		return nil
	}
	err := d.audit.InsertAlert(ctx, store.Alert{
		EventID:   a.EventID,
		AlertType: a.AlertType,
		Message:   a.Message,
		ImageURL:  a.ImageURL,
		CreatedAt: a.At,
	})
	if err != nil {
		d.logger.Error("alert not recorded", "event", a.EventID, "error", err)
		return fmt.Errorf("raise alert: %w", err)
	}
	return nil
}
