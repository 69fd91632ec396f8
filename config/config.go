package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Sync driver modes.
const (
	ModeChangeLog = "changelog"
	ModeWatermark = "watermark"
)

// Config holds everything the synchronizer reads from the environment.
type Config struct {
	SourceDSN        string
	TargetDSN        string
	Interval         time.Duration
	Schedule         string
	Mode             string
	BatchSize        int
	MaxAttempts      int
	SkipLogDir       string
	MappingFile      string
	BackfillPageSize int
	MaxOpenConns     int
	HTTPPort         string
	GinMode          string
	JWTSecret        string
	CORSOrigin       string
	LogLevel         string
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	cfg := &Config{
		SourceDSN:   os.Getenv("MYSQL_DSN"),
		TargetDSN:   os.Getenv("DATABASE_URL"),
		Schedule:    strings.TrimSpace(os.Getenv("SYNC_SCHEDULE")),
		Mode:        envOr("SYNC_MODE", ModeChangeLog),
		SkipLogDir:  envOr("SKIP_LOG_DIR", "."),
		MappingFile: os.Getenv("SYNC_MAPPING_FILE"),
		GinMode:     os.Getenv("GIN_MODE"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigin:  strings.TrimSpace(os.Getenv("CORS_ORIGIN")),
		LogLevel:    envOr("LOG_LEVEL", "info"),
	}

	// PORT may be set to the empty string on purpose to disable HTTP.
	if port, ok := os.LookupEnv("PORT"); ok {
		cfg.HTTPPort = port
	} else {
		cfg.HTTPPort = "8080"
	}

	var err error
	if cfg.Interval, err = envDuration("SYNC_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = envInt("SYNC_BATCH_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = envInt("SYNC_MAX_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if cfg.BackfillPageSize, err = envInt("BACKFILL_PAGE_SIZE", 500); err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration before any pool is opened.
func (c *Config) Validate() error {
	if c.SourceDSN == "" {
		return errors.New("MYSQL_DSN is required")
	}
	if c.TargetDSN == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Mode != ModeChangeLog && c.Mode != ModeWatermark {
		return fmt.Errorf("SYNC_MODE must be %q or %q, got %q", ModeChangeLog, ModeWatermark, c.Mode)
	}
	if c.Interval <= 0 {
		return errors.New("SYNC_INTERVAL must be positive")
	}
	if c.BatchSize < 1 {
		return errors.New("SYNC_BATCH_SIZE must be at least 1")
	}
	if c.MaxAttempts < 0 {
		return errors.New("SYNC_MAX_ATTEMPTS must not be negative")
	}
	if c.BackfillPageSize < 1 {
		return errors.New("BACKFILL_PAGE_SIZE must be at least 1")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.HTTPPort != "" && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required when the HTTP server is enabled")
	}
	if _, err := c.CronSchedule(); err != nil {
		return err
	}
	return nil
}

// CronSchedule returns the parsed SYNC_SCHEDULE, or a constant-delay
// schedule built from SYNC_INTERVAL.
func (c *Config) CronSchedule() (cron.Schedule, error) {
	if c.Schedule == "" {
		return cron.Every(c.Interval), nil
	}
	sched, err := cron.ParseStandard(c.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_SCHEDULE %q: %w", c.Schedule, err)
	}
	return sched, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
