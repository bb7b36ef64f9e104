// Package config loads environment-driven configuration, following the
// plain os.Getenv-plus-defaults style of the teacher's
// internal/server/handlers.go (initAllowedOrigins) and
// internal/bootstrap/phonehome.go. No config framework.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-tunable knob spec section 6 names.
type Config struct {
	StorePath string

	MaxOpenConns int
	QueryTimeout time.Duration

	ACBDefaultMaxTokens int

	RateLimitEventsPerMinute int
	RateLimitACBPerMinute    int

	TelemetryEndpoint    string
	TelemetrySubject     string
	TelemetrySampleRate  float64
	TelemetryEmbedBroker bool

	SecretScanningEnabled bool

	HTTPAddr string
}

// Load reads configuration from the environment, applying the defaults
// spec sections 5/6 specify.
func Load() Config {
	return Config{
		StorePath: getString("ACBMEM_STORE_PATH", "./data/acbmem.db"),

		MaxOpenConns: getInt("ACBMEM_MAX_OPEN_CONNS", 20),
		QueryTimeout: getDuration("ACBMEM_QUERY_TIMEOUT", 30*time.Second),

		ACBDefaultMaxTokens: getInt("ACBMEM_ACB_DEFAULT_MAX_TOKENS", 65000),

		RateLimitEventsPerMinute: getInt("ACBMEM_RATE_LIMIT_EVENTS_PER_MIN", 100),
		RateLimitACBPerMinute:    getInt("ACBMEM_RATE_LIMIT_ACB_PER_MIN", 60),

		TelemetryEndpoint:    getString("ACBMEM_TELEMETRY_NATS_URL", ""),
		TelemetrySubject:     getString("ACBMEM_TELEMETRY_SUBJECT", "acbmem.telemetry"),
		TelemetrySampleRate:  getFloat("ACBMEM_TELEMETRY_SAMPLE_RATE", 1.0),
		TelemetryEmbedBroker: getBool("ACBMEM_TELEMETRY_EMBED_BROKER", true),

		SecretScanningEnabled: getBool("ACBMEM_SECRET_SCANNING_ENABLED", true),

		HTTPAddr: getString("ACBMEM_HTTP_ADDR", ":8080"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
