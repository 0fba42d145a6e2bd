package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	APIMaxUploadBytes          int64
	APIRateLimitRPS            float64
	APIRateLimitBurst          int
	APIBackpressureMaxInFlight int
	APIBackpressureWait        time.Duration

	BackendURL     string
	BackendToken   string
	BackendTimeout time.Duration
	BackendRPS     float64
	BackendBurst   int

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      int
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls int

	ChunkThresholdBytes int64
	ChunkPartSize       int64
	InlineMaxRows       int
	InlineMaxBytes      int64
	AutoSave            bool
	Origin              string

	OCRPollInterval time.Duration
	OCRMaxAttempts  int
	OCRMaxWait      time.Duration
	OCRMaxPDFBytes  int64

	SnapshotDriver   string
	SnapshotDSN      string
	SnapshotLockPath string

	SpoolPath string

	EventsEnabled      bool
	NATSURL            string
	NATSEventsSubject  string
	NATSProgressPrefix string

	AliasTablePath  string
	MappingCacheTTL time.Duration

	InboxDir      string
	InboxDebounce time.Duration
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		APIMaxUploadBytes:          mustEnvInt64("API_MAX_UPLOAD_BYTES", 256<<20),
		APIRateLimitRPS:            mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:          mustEnvInt("API_RATE_LIMIT_BURST", 20),
		APIBackpressureMaxInFlight: mustEnvInt("API_BACKPRESSURE_MAX_IN_FLIGHT", 64),
		APIBackpressureWait:        mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),

		BackendURL:     mustEnv("BACKEND_URL", "http://localhost:8000"),
		BackendToken:   mustEnv("BACKEND_TOKEN", ""),
		BackendTimeout: mustEnvDuration("BACKEND_TIMEOUT", 60*time.Second),
		BackendRPS:     mustEnvFloat("BACKEND_RPS", 20),
		BackendBurst:   mustEnvInt("BACKEND_BURST", 5),

		RetryMaxAttempts:    mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff: mustEnvDuration("RETRY_INITIAL_BACKOFF", 200*time.Millisecond),
		RetryMaxBackoff:     mustEnvDuration("RETRY_MAX_BACKOFF", 2*time.Second),
		RetryMultiplier:     mustEnvFloat("RETRY_MULTIPLIER", 2),

		BreakerEnabled:          mustEnvBool("BREAKER_ENABLED", true),
		BreakerMinRequests:      mustEnvInt("BREAKER_MIN_REQUESTS", 10),
		BreakerFailureRatio:     mustEnvFloat("BREAKER_FAILURE_RATIO", 0.5),
		BreakerOpenTimeout:      mustEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		BreakerHalfOpenMaxCalls: mustEnvInt("BREAKER_HALF_OPEN_MAX_CALLS", 2),

		ChunkThresholdBytes: mustEnvInt64("CHUNK_THRESHOLD_BYTES", 8<<20),
		ChunkPartSize:       mustEnvInt64("CHUNK_PART_SIZE", 5<<20),
		InlineMaxRows:       mustEnvInt("INLINE_MAX_ROWS", 50000),
		InlineMaxBytes:      mustEnvInt64("INLINE_MAX_BYTES", 32<<20),
		AutoSave:            mustEnvBool("AUTO_SAVE", false),
		Origin:              mustEnv("INTAKE_ORIGIN", "upload"),

		OCRPollInterval: mustEnvDuration("OCR_POLL_INTERVAL", 2*time.Second),
		OCRMaxAttempts:  mustEnvInt("OCR_MAX_ATTEMPTS", 90),
		OCRMaxWait:      mustEnvDuration("OCR_MAX_WAIT", 3*time.Minute),
		OCRMaxPDFBytes:  mustEnvInt64("OCR_MAX_PDF_BYTES", 64<<20),

		SnapshotDriver:   mustEnv("SNAPSHOT_DRIVER", "sqlite"),
		SnapshotDSN:      mustEnv("SNAPSHOT_DSN", "./data/queue.db"),
		SnapshotLockPath: mustEnv("SNAPSHOT_LOCK_PATH", "./data/queue.lock"),

		SpoolPath: mustEnv("SPOOL_PATH", "./data/spool"),

		EventsEnabled:      mustEnvBool("EVENTS_ENABLED", false),
		NATSURL:            mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSEventsSubject:  mustEnv("NATS_EVENTS_SUBJECT", "intake.items"),
		NATSProgressPrefix: mustEnv("NATS_PROGRESS_PREFIX", "imports.progress"),

		AliasTablePath:  mustEnv("ALIAS_TABLE_PATH", ""),
		MappingCacheTTL: mustEnvDuration("MAPPING_CACHE_TTL", 5*time.Minute),

		InboxDir:      mustEnv("INBOX_DIR", ""),
		InboxDebounce: mustEnvDuration("INBOX_DEBOUNCE", 500*time.Millisecond),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
