package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	stringutil "nivaran/pkg/platform/strings"
)

// Config captures everything the server needs from the environment so main
// stays lean. Env prefix: NIVARAN_.
type Config struct {
	Addr string

	// PostgresDSN switches the record, audit and officer stores from memory
	// to Postgres when set.
	PostgresDSN string

	// Redis backs delivery markers and the document cache when configured.
	Redis RedisConfig

	// KafkaBrokers enables the audit compliance mirror when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// IdentityHashKey keys sender pseudonymization. Must be overridden in
	// production.
	IdentityHashKey string

	// PipelineDeadline is the end-to-end budget per grievance.
	PipelineDeadline time.Duration

	// GroundingThreshold is the global similarity cutoff for clause matches.
	GroundingThreshold float64

	// MaxConcurrentRuns bounds in-flight pipelines.
	MaxConcurrentRuns int64

	// EphemeralTTL bounds how long ephemeral fields (audio reference, raw
	// transcript) may survive on records that never reach a terminal state.
	EphemeralTTL time.Duration

	Collaborators Collaborators

	// DevStubs wires in-process collaborator stubs instead of HTTP adapters.
	DevStubs bool
}

// Collaborators holds the base URLs of the external services the pipeline
// calls. Empty values are only valid with DevStubs.
type Collaborators struct {
	SpeechURL    string
	TranslateURL string
	SearchURL    string
	TaggerURL    string
	RendererURL  string
	MessagingURL string
	EmailURL     string
}

// RedisConfig mirrors the go-redis options we care about.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:               envStr("NIVARAN_ADDR", ":8080"),
		PostgresDSN:        os.Getenv("NIVARAN_POSTGRES_DSN"),
		IdentityHashKey:    envStr("NIVARAN_HASH_KEY", "dev-hash-key-change-in-production"),
		PipelineDeadline:   envDuration("NIVARAN_PIPELINE_DEADLINE", 60*time.Second),
		GroundingThreshold: envFloat("NIVARAN_GROUNDING_THRESHOLD", 0.75),
		MaxConcurrentRuns:  int64(envInt("NIVARAN_MAX_CONCURRENT_RUNS", 64)),
		EphemeralTTL:       envDuration("NIVARAN_EPHEMERAL_TTL", 24*time.Hour),
		KafkaTopic:         envStr("NIVARAN_KAFKA_TOPIC", "nivaran.audit.compliance"),
		DevStubs:           os.Getenv("NIVARAN_DEV_STUBS") == "true",
		Redis: RedisConfig{
			URL:          os.Getenv("NIVARAN_REDIS_URL"),
			PoolSize:     envInt("NIVARAN_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("NIVARAN_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("NIVARAN_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("NIVARAN_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("NIVARAN_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Collaborators: Collaborators{
			SpeechURL:    os.Getenv("NIVARAN_SPEECH_URL"),
			TranslateURL: os.Getenv("NIVARAN_TRANSLATE_URL"),
			SearchURL:    os.Getenv("NIVARAN_SEARCH_URL"),
			TaggerURL:    os.Getenv("NIVARAN_TAGGER_URL"),
			RendererURL:  os.Getenv("NIVARAN_RENDERER_URL"),
			MessagingURL: os.Getenv("NIVARAN_MESSAGING_URL"),
			EmailURL:     os.Getenv("NIVARAN_EMAIL_URL"),
		},
	}
	if brokers := os.Getenv("NIVARAN_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = stringutil.DedupeAndTrim(strings.Split(brokers, ","))
	}
	return cfg
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
