package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"STORAGE_BUCKET", "GALLERY_MIRROR_DIR", "POLL_INTERVAL", "MATCH_THRESHOLD",
		"ANNOUNCE_COOLDOWN", "CAPTURE_COOLDOWN", "DATABASE_DRIVER", "DATABASE_URL", "POSTGRES_HOST",
		"CAMERA_SOURCE", "VOICE_COMMAND", "WEB_HOST", "WEB_PORT",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	// Explicitly empty strings are kept.
	if cfg.Storage.Bucket != "" {
		t.Errorf("expected empty bucket to be kept, got %q", cfg.Storage.Bucket)
	}
	if cfg.Gallery.PollInterval != 20*time.Second {
		t.Errorf("expected 20s poll interval, got %v", cfg.Gallery.PollInterval)
	}
	if cfg.Policy.Threshold != 0.50 {
		t.Errorf("expected 0.50 threshold, got %v", cfg.Policy.Threshold)
	}
	if cfg.Policy.AnnounceCooldown != 10*time.Second || cfg.Policy.CaptureCooldown != time.Minute {
		t.Errorf("unexpected cooldowns %v / %v", cfg.Policy.AnnounceCooldown, cfg.Policy.CaptureCooldown)
	}
	if cfg.Database.URL != "postgres://localhost:5432/sentinel" {
		t.Errorf("unexpected database URL %q", cfg.Database.URL)
	}
	if cfg.Web.Port != 5000 || cfg.Web.Addr() != ":5000" {
		t.Errorf("unexpected web addr %q", cfg.Web.Addr())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_BUCKET", "house")
	t.Setenv("POLL_INTERVAL", "5")
	t.Setenv("ANNOUNCE_COOLDOWN", "1m30s")
	t.Setenv("MATCH_THRESHOLD", "0.42")
	t.Setenv("NTH_FRAME", "3")
	t.Setenv("DATABASE_DRIVER", "MySQL")
	t.Setenv("DATABASE_URL", "user:pw@tcp(db:3306)/security")

	cfg := Load()

	if cfg.Storage.Bucket != "house" {
		t.Errorf("unexpected bucket %q", cfg.Storage.Bucket)
	}
	if cfg.Gallery.PollInterval != 5*time.Second {
		t.Errorf("expected bare number to mean seconds, got %v", cfg.Gallery.PollInterval)
	}
	if cfg.Policy.AnnounceCooldown != 90*time.Second {
		t.Errorf("unexpected announce cooldown %v", cfg.Policy.AnnounceCooldown)
	}
	if cfg.Policy.Threshold != 0.42 {
		t.Errorf("unexpected threshold %v", cfg.Policy.Threshold)
	}
	if cfg.Camera.NthFrame != 3 {
		t.Errorf("unexpected nth frame %d", cfg.Camera.NthFrame)
	}
	if cfg.Database.Driver != "mysql" || cfg.Database.URL != "user:pw@tcp(db:3306)/security" {
		t.Errorf("unexpected database config %+v", cfg.Database)
	}
}

func TestLoad_PostgresFromParts(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "sentinel")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_DB", "home")
	t.Setenv("POSTGRES_PORT", "")

	cfg := Load()
	if cfg.Database.URL != "postgres://sentinel:pw@db:5432/home" {
		t.Errorf("unexpected URL %q", cfg.Database.URL)
	}
}

func TestEnvHelpers_InvalidFallsBack(t *testing.T) {
	t.Setenv("X_INT", "-4")
	t.Setenv("X_FLOAT", "abc")
	t.Setenv("X_DUR", "soon")

	if envInt("X_INT", 7) != 7 {
		t.Error("negative int should fall back")
	}
	if envFloat("X_FLOAT", 0.5) != 0.5 {
		t.Error("invalid float should fall back")
	}
	if envDuration("X_DUR", time.Second) != time.Second {
		t.Error("invalid duration should fall back")
	}
}
