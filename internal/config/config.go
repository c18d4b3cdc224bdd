package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL    string
	MigrateOnStart bool

	// Redis (optional)
	RedisURL           string
	SnapshotTTLMinutes int

	// Server
	Port            string
	FrontendURL     string
	ShutdownTimeout time.Duration

	// Security
	JWTSecret            string
	TableTokenTTLMinutes int

	// Table loop
	FrameIntervalMs       int
	MaxStepsPerShot       int
	TableIdleMinutes      int
	IdleWorkerPollSeconds int
	GroupPolicy           string

	// Opponent advisory
	AdvisorURL             string
	AdvisorAPIKey          string
	AdvisorTimeoutMs       int
	AdvisorCooldownSeconds int
	AdvisorMinConfidence   float64
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "sqlite://billiards.db"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),

		// Redis
		RedisURL:           getEnv("REDIS_URL", ""),
		SnapshotTTLMinutes: getEnvInt("SNAPSHOT_TTL_MINUTES", 60),

		// Server
		Port:            getEnv("APP_PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:5173"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		// Security
		JWTSecret:            getEnv("JWT_SECRET", "change-me-in-production"),
		TableTokenTTLMinutes: getEnvInt("TABLE_TOKEN_TTL_MINUTES", 240),

		// Table loop
		FrameIntervalMs:       getEnvInt("FRAME_INTERVAL_MS", 16),
		MaxStepsPerShot:       getEnvInt("MAX_STEPS_PER_SHOT", 20000),
		TableIdleMinutes:      getEnvInt("TABLE_IDLE_MINUTES", 30),
		IdleWorkerPollSeconds: getEnvInt("IDLE_WORKER_POLL_SECONDS", 30),
		GroupPolicy:           getEnv("GROUP_POLICY", "open_table"),

		// Opponent advisory
		AdvisorURL:             getEnv("ADVISOR_URL", ""),
		AdvisorAPIKey:          getEnv("ADVISOR_API_KEY", ""),
		AdvisorTimeoutMs:       getEnvInt("ADVISOR_TIMEOUT_MS", 1500),
		AdvisorCooldownSeconds: getEnvInt("ADVISOR_COOLDOWN_SECONDS", 60),
		AdvisorMinConfidence:   getEnvFloat("ADVISOR_MIN_CONFIDENCE", 0.2),
	}
}

// Default returns the configuration with every key at its default value.
func Default() *Config {
	return &Config{
		Environment:            "development",
		DatabaseURL:            "sqlite://billiards.db",
		SnapshotTTLMinutes:     60,
		Port:                   "8080",
		FrontendURL:            "http://localhost:5173",
		ShutdownTimeout:        10 * time.Second,
		JWTSecret:              "change-me-in-production",
		TableTokenTTLMinutes:   240,
		FrameIntervalMs:        16,
		MaxStepsPerShot:        20000,
		TableIdleMinutes:       30,
		IdleWorkerPollSeconds:  30,
		GroupPolicy:            "open_table",
		AdvisorTimeoutMs:       1500,
		AdvisorCooldownSeconds: 60,
		AdvisorMinConfidence:   0.2,
	}
}

// FrameInterval is the table loop tick. Zero means shots resolve
// synchronously inside the call that fires them.
func (c *Config) FrameInterval() time.Duration {
	if c.FrameIntervalMs <= 0 {
		return 0
	}
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLMinutes) * time.Minute
}

func (c *Config) TableTokenTTL() time.Duration {
	return time.Duration(c.TableTokenTTLMinutes) * time.Minute
}

func (c *Config) AdvisorTimeout() time.Duration {
	return time.Duration(c.AdvisorTimeoutMs) * time.Millisecond
}

func (c *Config) AdvisorCooldown() time.Duration {
	return time.Duration(c.AdvisorCooldownSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
