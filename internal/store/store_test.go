package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestVecToString(t *testing.T) {
	if got := vecToString(nil); got != nil {
		t.Errorf("expected nil for empty embedding, got %v", got)
	}
	got := vecToString([]float64{1, 0.5, -2})
	if got != "[1,0.5,-2]" {
		t.Errorf("unexpected literal %v", got)
	}

	s := got.(string)
	back, err := parseVec(&s)
	if err != nil {
		t.Fatalf("parseVec failed: %v", err)
	}
	if len(back) != 3 || back[1] != 0.5 || back[2] != -2 {
		t.Errorf("unexpected round trip %v", back)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultListLimit},
		{-3, DefaultListLimit},
		{10, 10},
		{5000, 1000},
	}
	for _, tc := range tests {
		if got := clampLimit(tc.in); got != tc.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "x"); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}

func TestOpen_FailureReturnsNilLog(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cases := []struct{ driver, dsn string }{
		{"postgres", "postgres://sentinel@127.0.0.1:1/sentinel?connect_timeout=1"},
		{"postgres", "not a url ::"},
		{"mysql", ""},
	}
	for _, tc := range cases {
		log, err := Open(ctx, tc.driver, tc.dsn)
		if err == nil {
			t.Errorf("Open(%q, %q) succeeded, want error", tc.driver, tc.dsn)
		}
		if log != nil {
			t.Errorf("Open(%q, %q) returned %T alongside the error, want nil", tc.driver, tc.dsn, log)
		}
	}
}

func TestNewMySQL_RequiresDSN(t *testing.T) {
	if _, err := NewMySQL(context.Background(), ""); err == nil {
		t.Fatal("expected an error for an empty DSN")
	}
}

// startPostgres launches pgvector/pgvector:pg16 and returns its connection string.
// The test is skipped when Docker is not reachable.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := func() (c testcontainers.Container, err error) {
		// testcontainers panics when the Docker socket is missing.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "pgvector/pgvector:pg16",
				ExposedPorts: []string{"5432/tcp"},
				Env: map[string]string{
					"POSTGRES_USER":     "user",
					"POSTGRES_PASSWORD": "password",
					"POSTGRES_DB":       "sentinel_test",
				},
				WaitingFor: wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60 * time.Second),
			},
			Started: true,
			Logger:  noopLogger{},
		})
	}()
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}
	return fmt.Sprintf("postgres://user:password@%s:%s/sentinel_test?sslmode=disable", host, port.Port())
}

// TestStoreIntegration runs the audit log against a real Postgres container.
func TestStoreIntegration(t *testing.T) {
	connStr := startPostgres(t)
	ctx := context.Background()

	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	emb := make([]float64, 128)
	emb[0] = 1.0
	t0 := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

	if err := s.InsertVisit(ctx, Visit{
		EventID: "evt-1", Name: "Alice", RecognizedAs: "family", Notes: "dist=0.1000",
		Distance: 0.1, Embedding: emb, CreatedAt: t0,
	}); err != nil {
		t.Fatalf("InsertVisit failed: %v", err)
	}
	if err := s.InsertVisit(ctx, Visit{
		EventID: "evt-2", RecognizedAs: "unknown", Notes: "Photo captured",
		ImageURL: "https://example.test/visitors/unknown_1.jpg", CreatedAt: t0.Add(time.Minute),
	}); err != nil {
		t.Fatalf("InsertVisit without name failed: %v", err)
	}
	if err := s.InsertAlert(ctx, Alert{
		EventID: "evt-3", AlertType: "criminal_detected", Message: "Bob detected", CreatedAt: t0,
	}); err != nil {
		t.Fatalf("InsertAlert failed: %v", err)
	}

	visits, err := s.ListVisits(ctx, 10)
	if err != nil {
		t.Fatalf("ListVisits failed: %v", err)
	}
	if len(visits) != 2 {
		t.Fatalf("Expected 2 visits, got %d", len(visits))
	}
	if visits[0].EventID != "evt-2" || visits[0].Name != "" || visits[0].Embedding != nil {
		t.Errorf("Expected newest anonymous visit first, got %+v", visits[0])
	}
	if visits[1].Name != "Alice" || len(visits[1].Embedding) != 128 || visits[1].Embedding[0] != 1.0 {
		t.Errorf("Unexpected family visit %+v", visits[1])
	}

	alerts, err := s.ListAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ImageURL != "" || alerts[0].AlertType != "criminal_detected" {
		t.Errorf("Unexpected alerts %+v", alerts)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListVisits(ctx, 10); err == nil {
		t.Error("Expected ListVisits to fail after Reset dropped the tables")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
