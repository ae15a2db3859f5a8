package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAPIURL      = "http://localhost:5000"
	defaultAPITimeout  = 60 * time.Second
	defaultHTTPAddr    = ":8090"
	defaultMetricsAddr = ":9092"
	defaultSessionTTL  = 30 * time.Minute
	defaultMaxSessions = 256

	envAPIURL         = "PLAYGROUND_API_URL"
	envAPIKey         = "PLAYGROUND_API_KEY"
	envAPITimeout     = "PLAYGROUND_API_TIMEOUT"
	envHTTPAddr       = "PLAYGROUND_HTTP_ADDR"
	envMetricsAddr    = "PLAYGROUND_METRICS_ADDR"
	envRedisURL       = "REDIS_URL"
	envNATSURL        = "NATS_URL"
	envSessionTTL     = "PLAYGROUND_SESSION_TTL"
	envMaxSessions    = "PLAYGROUND_MAX_SESSIONS"
	envPresetPath     = "PLAYGROUND_PRESET"
	envAllowedOrigins = "PLAYGROUND_ALLOWED_ORIGINS"
)

// Config holds runtime configuration for the playground API and CLI.
type Config struct {
	APIURL     string
	APIKey     string
	APITimeout time.Duration

	HTTPAddr    string
	MetricsAddr string

	// RedisURL and NatsURL are optional. Empty disables shared processing
	// locks and event publishing respectively.
	RedisURL string
	NatsURL  string

	SessionTTL     time.Duration
	MaxSessions    int
	PresetPath     string
	AllowedOrigins []string
}

// Load returns configuration from the environment, after loading .env from
// the working directory when one exists.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		APIURL:         envOr(envAPIURL, defaultAPIURL),
		APIKey:         strings.TrimSpace(os.Getenv(envAPIKey)),
		APITimeout:     envDuration(envAPITimeout, defaultAPITimeout),
		HTTPAddr:       envOr(envHTTPAddr, defaultHTTPAddr),
		MetricsAddr:    envOr(envMetricsAddr, defaultMetricsAddr),
		RedisURL:       strings.TrimSpace(os.Getenv(envRedisURL)),
		NatsURL:        strings.TrimSpace(os.Getenv(envNATSURL)),
		SessionTTL:     envDuration(envSessionTTL, defaultSessionTTL),
		MaxSessions:    envInt(envMaxSessions, defaultMaxSessions),
		PresetPath:     strings.TrimSpace(os.Getenv(envPresetPath)),
		AllowedOrigins: splitList(os.Getenv(envAllowedOrigins)),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envDuration accepts Go durations ("90s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
