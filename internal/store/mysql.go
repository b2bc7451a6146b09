package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL is the audit log on a MySQL or MariaDB server. Embeddings are stored as
// pgvector-formatted text so both backends share one representation.
type MySQL struct {
	db *sql.DB
}

// NewMySQL opens a pool for dsn and ensures the schema exists.
func NewMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	if dsn == "" {
		return nil, errors.New("MySQL DSN is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if _, err := db.ExecContext(ctx, mysqlSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &MySQL{db: db}, nil
}

const mysqlSchema = `
	CREATE TABLE IF NOT EXISTS visitor_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		event_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NULL,
		recognized_as VARCHAR(32) NOT NULL,
		notes TEXT NOT NULL,
		image_url TEXT NULL,
		distance DOUBLE NOT NULL DEFAULT 0,
		embedding TEXT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX visitor_logs_created_at_idx (created_at)
	);
	CREATE TABLE IF NOT EXISTS alerts (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		event_id VARCHAR(64) NOT NULL,
		alert_type VARCHAR(64) NOT NULL,
		message TEXT NOT NULL,
		image_url TEXT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX alerts_created_at_idx (created_at)
	);
`

// Close closes the pool.
func (m *MySQL) Close() error {
	if err := m.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// InsertVisit appends a visitor_logs row.
func (m *MySQL) InsertVisit(ctx context.Context, v Visit) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO visitor_logs (event_id, name, recognized_as, notes, image_url, distance, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.EventID, nullable(v.Name), v.RecognizedAs, v.Notes, nullable(v.ImageURL), v.Distance,
		vecToString(v.Embedding), stamp(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// InsertAlert appends an alerts row.
func (m *MySQL) InsertAlert(ctx context.Context, a Alert) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO alerts (event_id, alert_type, message, image_url, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.EventID, a.AlertType, a.Message, nullable(a.ImageURL), stamp(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListVisits returns the newest visits first.
func (m *MySQL) ListVisits(ctx context.Context, limit int) ([]Visit, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, event_id, name, recognized_as, notes, image_url, distance, embedding, created_at
		FROM visitor_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		var v Visit
		var name, url, emb sql.NullString
		if err := rows.Scan(&v.ID, &v.EventID, &name, &v.RecognizedAs, &v.Notes, &url, &v.Distance, &emb, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.Name = name.String
		v.ImageURL = url.String
		if emb.Valid {
			if v.Embedding, err = parseVec(&emb.String); err != nil {
				return nil, fmt.Errorf("parse embedding of visit %d: %w", v.ID, err)
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListAlerts returns the newest alerts first.
func (m *MySQL) ListAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, event_id, alert_type, message, image_url, created_at
		FROM alerts
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var url sql.NullString
		if err := rows.Scan(&a.ID, &a.EventID, &a.AlertType, &a.Message, &url, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.ImageURL = url.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// Reset drops both audit tables.
func (m *MySQL) Reset(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `DROP TABLE IF EXISTS visitor_logs; DROP TABLE IF EXISTS alerts;`)
	return err
}
