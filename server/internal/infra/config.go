package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment
// variables, following the spec's §6 Configuration table.
type Config struct {
	AppEnv string
	Port   string

	DatabaseURL string
	QueueURL    string

	MaxQueueSize         int
	MaxConcurrentChunks  int
	PerCredCap           int
	RateLimitCooldownMS  int
	ChunkSizeMinutes     int
	AutoChunkThresholdMB int
	Credentials          []string
	TempVideoDir         string
	LeaseTimeout         time.Duration
	DefaultModelID       string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed, hard-failing on the variables the core cannot run
// without (DATABASE_URL, QUEUE_URL, CREDENTIALS).
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8090"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		QueueURL:             os.Getenv("QUEUE_URL"),
		MaxQueueSize:         getEnvInt("MAX_QUEUE_SIZE", 10),
		MaxConcurrentChunks:  getEnvInt("MAX_CONCURRENT_CHUNKS", 12),
		PerCredCap:           getEnvInt("PER_CRED_CAP", 3),
		RateLimitCooldownMS:  getEnvInt("RATE_LIMIT_COOLDOWN_MS", 60000),
		ChunkSizeMinutes:     getEnvInt("CHUNK_SIZE_MINUTES", 20),
		AutoChunkThresholdMB: getEnvInt("AUTO_CHUNK_THRESHOLD_MB", 500),
		Credentials:          getEnvList("CREDENTIALS"),
		TempVideoDir:         getEnv("TEMP_VIDEO_DIR", os.TempDir()),
		LeaseTimeout:         time.Second * time.Duration(getEnvInt("LEASE_TIMEOUT_SECONDS", 900)),
		DefaultModelID:       getEnv("DEFAULT_MODEL_ID", "gemini-2.5-flash"),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("QUEUE_URL is required")
	}
	if len(cfg.Credentials) == 0 {
		return nil, fmt.Errorf("CREDENTIALS is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvList parses a comma-separated list of opaque credential strings.
func getEnvList(key string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
