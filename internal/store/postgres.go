package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store manages the PostgreSQL pool and pgvector columns.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS visitor_logs (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL,
			name TEXT,
			recognized_as TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			image_url TEXT,
			distance DOUBLE PRECISION NOT NULL DEFAULT 0,
			embedding VECTOR(128),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			message TEXT NOT NULL,
			image_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS visitor_logs_created_at_idx ON visitor_logs (created_at DESC);
		CREATE INDEX IF NOT EXISTS alerts_created_at_idx ON alerts (created_at DESC);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// vecToString formats an embedding as a pgvector literal, or nil when empty.
func vecToString(vec []float64) any {
	if len(vec) == 0 {
		return nil
	}
	f := make([]float32, len(vec))
	for i, v := range vec {
		f[i] = float32(v)
	}
	return pgvector.NewVector(f).String()
}

func parseVec(s *string) ([]float64, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var v pgvector.Vector
	if err := v.Parse(*s); err != nil {
		return nil, err
	}
	out := make([]float64, len(v.Slice()))
	for i, f := range v.Slice() {
		out[i] = float64(f)
	}
	return out, nil
}

// InsertVisit appends a visitor_logs row.
func (s *Store) InsertVisit(ctx context.Context, v Visit) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO visitor_logs (event_id, name, recognized_as, notes, image_url, distance, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::vector, COALESCE($8, NOW()))
	`, v.EventID, nullable(v.Name), v.RecognizedAs, v.Notes, nullable(v.ImageURL), v.Distance,
		vecToString(v.Embedding), nullTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// InsertAlert appends an alerts row.
func (s *Store) InsertAlert(ctx context.Context, a Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (event_id, alert_type, message, image_url, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
	`, a.EventID, a.AlertType, a.Message, nullable(a.ImageURL), nullTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListVisits returns the newest visits first.
func (s *Store) ListVisits(ctx context.Context, limit int) ([]Visit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, name, recognized_as, notes, image_url, distance, embedding::text, created_at
		FROM visitor_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		var v Visit
		var name, url, emb *string
		if err := rows.Scan(&v.ID, &v.EventID, &name, &v.RecognizedAs, &v.Notes, &url, &v.Distance, &emb, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.Name = deref(name)
		v.ImageURL = deref(url)
		if v.Embedding, err = parseVec(emb); err != nil {
			return nil, fmt.Errorf("parse embedding of visit %d: %w", v.ID, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListAlerts returns the newest alerts first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, alert_type, message, image_url, created_at
		FROM alerts
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var url *string
		if err := rows.Scan(&a.ID, &a.EventID, &a.AlertType, &a.Message, &url, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.ImageURL = deref(url)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// The next New call recreates them.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS visitor_logs CASCADE;
		DROP TABLE IF EXISTS alerts CASCADE;
	`)
	return err
}
