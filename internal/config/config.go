// Package config provides configuration management for the intelligence engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // base directory for all databases, always absolute
	LogLevel string
	Port     int
	DevMode  bool

	// GameServerURL is the base URL of the game-state API the engine
	// verifies positions and map topology against.
	GameServerURL string

	Intel  IntelConfig
	Backup BackupConfig
}

// IntelConfig holds the engine tunables. The defaults are contractual:
// downstream balancing was tuned against them, so change them deliberately.
type IntelConfig struct {
	// Quantum state weights (optimistic / pattern / pessimistic / unknown).
	OptimisticWeight  float64
	PatternWeight     float64
	PessimisticWeight float64
	UnknownWeight     float64

	// MinDataPoints is the observation count required before forecasting.
	MinDataPoints int

	// MaxObservations bounds the retained series per (port, commodity).
	MaxObservations int

	// DailyDecay is the geometric confidence decay per day since last visit.
	DailyDecay float64

	// CacheTTL is how long ghost-trade results stay valid.
	CacheTTL time.Duration

	// AnomalyThreshold flags security events for review.
	AnomalyThreshold float64

	// QueriesPerMinute is the per-player forecast/ghost budget.
	QueriesPerMinute int
}

// BackupConfig holds snapshot backup settings for an S3-compatible bucket.
type BackupConfig struct {
	Enabled   bool
	Bucket    string
	Endpoint  string // leave empty for AWS S3 proper
	Region    string
	AccessKey string
	SecretKey string
	Keep      int // number of remote snapshots to retain
}

// Load reads configuration from environment variables, with an optional
// .env file for development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("INTEL_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir %q: %w", dataDir, err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	port, err := getEnvInt("INTEL_PORT", 8080)
	if err != nil {
		return nil, err
	}
	keep, err := getEnvInt("INTEL_BACKUP_KEEP", 7)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:       absDataDir,
		LogLevel:      getEnv("INTEL_LOG_LEVEL", "info"),
		Port:          port,
		DevMode:       os.Getenv("INTEL_DEV_MODE") == "true",
		GameServerURL: getEnv("INTEL_GAMESERVER_URL", "http://localhost:8000"),
		Intel:         DefaultIntelConfig(),
		Backup: BackupConfig{
			Enabled:   os.Getenv("INTEL_BACKUP_ENABLED") == "true",
			Bucket:    os.Getenv("INTEL_BACKUP_BUCKET"),
			Endpoint:  os.Getenv("INTEL_BACKUP_ENDPOINT"),
			Region:    getEnv("INTEL_BACKUP_REGION", "auto"),
			AccessKey: os.Getenv("INTEL_BACKUP_ACCESS_KEY"),
			SecretKey: os.Getenv("INTEL_BACKUP_SECRET_KEY"),
			Keep:      keep,
		},
	}

	if cfg.Backup.Enabled && cfg.Backup.Bucket == "" {
		return nil, fmt.Errorf("INTEL_BACKUP_ENABLED is set but INTEL_BACKUP_BUCKET is empty")
	}

	return cfg, nil
}

// DefaultIntelConfig returns the contractual engine defaults.
func DefaultIntelConfig() IntelConfig {
	return IntelConfig{
		OptimisticWeight:  0.25,
		PatternWeight:     0.45,
		PessimisticWeight: 0.25,
		UnknownWeight:     0.05,
		MinDataPoints:     5,
		MaxObservations:   50,
		DailyDecay:        0.95,
		CacheTTL:          15 * time.Minute,
		AnomalyThreshold:  0.8,
		QueriesPerMinute:  60,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}
