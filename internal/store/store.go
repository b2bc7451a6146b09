// Package store persists the audit trail: one row per visitor sighting and one per
// raised alert. PostgreSQL (with pgvector) is the primary backend; MySQL is kept for
// deployments that already run the old detections database.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Visit is one row of visitor_logs.
type Visit struct {
	ID           int64     `json:"id"`
	EventID      string    `json:"event_id"`
	Name         string    `json:"name,omitempty"`
	RecognizedAs string    `json:"recognized_as"`
	Notes        string    `json:"notes"`
	ImageURL     string    `json:"image_url,omitempty"`
	Distance     float64   `json:"distance"`
	Embedding    []float64 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Alert is one row of alerts.
type Alert struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"event_id"`
	AlertType string    `json:"alert_type"`
	Message   string    `json:"message"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditLog is implemented by every backend.
type AuditLog interface {
	InsertVisit(ctx context.Context, v Visit) error
	InsertAlert(ctx context.Context, a Alert) error
	ListVisits(ctx context.Context, limit int) ([]Visit, error)
	ListAlerts(ctx context.Context, limit int) ([]Alert, error)
	Reset(ctx context.Context) error
	Close() error
}

var (
	_ AuditLog = (*Store)(nil)
	_ AuditLog = (*MySQL)(nil)
)

// DefaultListLimit matches the dashboard's page size.
const DefaultListLimit = 50

// Open connects to the backend named by driver ("postgres" or "mysql") and runs migrations.
func Open(ctx context.Context, driver, dsn string) (AuditLog, error) {
	switch strings.ToLower(driver) {
	case "", "postgres", "postgresql", "pgx":
		s, err := New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mysql", "mariadb":
		m, err := NewMySQL(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
