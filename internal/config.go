package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Meeting providers.
const (
	MeetingProviderMock  = "mock"
	MeetingProviderJitsi = "jitsi"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Storage
	StoreDriver string // "postgres" or "memory"
	DatabaseUrl string

	// Quota enforcement
	QuotaLockTimeout     time.Duration // Row lock wait before a gated action fails as unavailable
	ReconcileConcurrency int           // Users reconciled in parallel by batch jobs

	// Schedules (standard 5-field cron, or descriptors like "@hourly").
	// Empty disables the schedule.
	CycleResetSchedule      string
	ReconcileSchedule       string
	ReportThresholdSchedule string

	// Operator access to /admin and /metrics
	OperatorUsername     string
	OperatorPasswordHash string // bcrypt hash

	// Per-user API rate limit
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// SMTP Configuration. An empty host logs notices instead of sending them.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Application base URL (for email links)
	BaseURL string

	// Meeting links
	MeetingProvider string // "mock" or "jitsi"
	JitsiBaseURL    string
	JitsiRoomPrefix string

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		DatabaseUrl: os.Getenv("DATABASE_URL"),

		QuotaLockTimeout:     getEnvDuration("QUOTA_LOCK_TIMEOUT", 5*time.Second),
		ReconcileConcurrency: getEnvInt("RECONCILE_CONCURRENCY", 4),

		CycleResetSchedule:      getEnv("CYCLE_RESET_SCHEDULE", "@hourly"),
		ReconcileSchedule:       getEnv("RECONCILE_SCHEDULE", "30 3 * * *"),
		ReportThresholdSchedule: getEnv("REPORT_THRESHOLD_SCHEDULE", "*/15 * * * *"),

		OperatorUsername:     getEnv("OPERATOR_USERNAME", "operator"),
		OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		// SMTP defaults for Mailhog (development)
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@kinship.app"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Kinship"),

		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		MeetingProvider: getEnv("MEETING_PROVIDER", MeetingProviderMock),
		JitsiBaseURL:    getEnv("JITSI_BASE_URL", "https://meet.jit.si"),
		JitsiRoomPrefix: getEnv("JITSI_ROOM_PREFIX", "kinship"),

		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is 'postgres'")
		}
	case StoreDriverMemory:
		if c.Env == "production" {
			return fmt.Errorf("STORE_DRIVER 'memory' is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be either 'postgres' or 'memory', got: %s", c.StoreDriver)
	}

	if c.QuotaLockTimeout <= 0 {
		return fmt.Errorf("QUOTA_LOCK_TIMEOUT must be positive, got: %s", c.QuotaLockTimeout)
	}
	if c.ReconcileConcurrency < 1 {
		return fmt.Errorf("RECONCILE_CONCURRENCY must be at least 1, got: %d", c.ReconcileConcurrency)
	}

	for name, schedule := range map[string]string{
		"CYCLE_RESET_SCHEDULE":      c.CycleResetSchedule,
		"RECONCILE_SCHEDULE":        c.ReconcileSchedule,
		"REPORT_THRESHOLD_SCHEDULE": c.ReportThresholdSchedule,
	} {
		if schedule == "" {
			continue
		}
		if _, err := cron.ParseStandard(schedule); err != nil {
			return fmt.Errorf("%s is not a valid cron schedule: %w", name, err)
		}
	}

	if c.Env == "production" && c.OperatorPasswordHash == "" {
		return fmt.Errorf("OPERATOR_PASSWORD_HASH is required in production")
	}

	switch c.MeetingProvider {
	case MeetingProviderMock:
	case MeetingProviderJitsi:
		if c.JitsiBaseURL == "" {
			return fmt.Errorf("JITSI_BASE_URL is required when MEETING_PROVIDER is 'jitsi'")
		}
	default:
		return fmt.Errorf("MEETING_PROVIDER must be either 'mock' or 'jitsi', got: %s", c.MeetingProvider)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
