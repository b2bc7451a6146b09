package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Storage  StorageConfig
	Gallery  GalleryConfig
	Policy   PolicyConfig
	Database DatabaseConfig
	Camera   CameraConfig
	Detector DetectorConfig
	Voice    VoiceConfig
	Evidence EvidenceConfig
	Web      WebConfig
	LogLevel string
}

type StorageConfig struct {
	URL    string // project URL of the storage bucket API
	Key    string
	Bucket string
}

type GalleryConfig struct {
	Dir          string // when set, galleries are read from this directory instead of the bucket
	FamilyPath   string
	CriminalPath string
	PollInterval time.Duration
	MirrorDir    string // empty disables the local mirror
}

type PolicyConfig struct {
	Threshold               float64
	AnnounceCooldown        time.Duration
	CaptureCooldown         time.Duration
	ThrottleMaxEntries      int
	UnknownClusterThreshold float64
	UnknownMaxClusters      int
}

type DatabaseConfig struct {
	Driver string // postgres or mysql
	URL    string
}

type CameraConfig struct {
	Source   string // device index, file or stream URL
	NthFrame int
}

type DetectorConfig struct {
	Command string
	Timeout time.Duration
}

type VoiceConfig struct {
	Command string // empty disables speech
	Queue   int
}

type EvidenceConfig struct {
	MaxSize int
	Prefix  string
}

type WebConfig struct {
	Host string
	Port int
}

// Addr is the listen address of the HTTP API.
func (c WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// envStr returns the variable or defaultVal when unset. A variable set to the empty
// string is kept, so features can be switched off explicitly.
func envStr(key, defaultVal string) string {
	if s, ok := os.LookupEnv(key); ok {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat parses a positive float, falling back like envInt.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration accepts a Go duration ("90s") or a bare number of seconds ("20").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	return defaultVal
}

// postgresURL builds a connection string from the POSTGRES_* variables.
func postgresURL() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return "postgres://localhost:5432/sentinel"
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

func Load() *Config {
	db := DatabaseConfig{
		Driver: strings.ToLower(envStr("DATABASE_DRIVER", "postgres")),
		URL:    os.Getenv("DATABASE_URL"),
	}
	if db.URL == "" && (db.Driver == "postgres" || db.Driver == "") {
		db.URL = postgresURL()
	}

	return &Config{
		Storage: StorageConfig{
			URL:    os.Getenv("STORAGE_URL"),
			Key:    os.Getenv("STORAGE_KEY"),
			Bucket: envStr("STORAGE_BUCKET", "sentinal_ai_home_security"),
		},
		Gallery: GalleryConfig{
			Dir:          os.Getenv("GALLERY_DIR"),
			FamilyPath:   envStr("GALLERY_FAMILY_PATH", "encodings/family_encodings.json"),
			CriminalPath: envStr("GALLERY_CRIMINAL_PATH", "encodings/criminal_encodings.json"),
			PollInterval: envDuration("POLL_INTERVAL", 20*time.Second),
			MirrorDir:    envStr("GALLERY_MIRROR_DIR", "encodings"),
		},
		Policy: PolicyConfig{
			Threshold:               envFloat("MATCH_THRESHOLD", 0.50),
			AnnounceCooldown:        envDuration("ANNOUNCE_COOLDOWN", 10*time.Second),
			CaptureCooldown:         envDuration("CAPTURE_COOLDOWN", 60*time.Second),
			ThrottleMaxEntries:      envInt("THROTTLE_MAX_ENTRIES", 1024),
			UnknownClusterThreshold: envFloat("UNKNOWN_CLUSTER_THRESHOLD", 0.50),
			UnknownMaxClusters:      envInt("UNKNOWN_MAX_CLUSTERS", 256),
		},
		Database: db,
		Camera: CameraConfig{
			Source:   envStr("CAMERA_SOURCE", "0"),
			NthFrame: envInt("NTH_FRAME", 1),
		},
		Detector: DetectorConfig{
			Command: envStr("DETECTOR_COMMAND", "python3 -u python/detector.py"),
			Timeout: envDuration("DETECTOR_TIMEOUT", 30*time.Second),
		},
		Voice: VoiceConfig{
			Command: envStr("VOICE_COMMAND", "espeak"),
			Queue:   envInt("VOICE_QUEUE", 8),
		},
		Evidence: EvidenceConfig{
			MaxSize: envInt("EVIDENCE_MAX_SIZE", 1280),
			Prefix:  envStr("EVIDENCE_PREFIX", "visitors"),
		},
		Web: WebConfig{
			Host: envStr("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 5000),
		},
		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}
