// Package config loads service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	Reading       ReadingConfig
	PhaseLimits   PhaseLimitsConfig
	Gateway       GatewayConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener addresses and identity.
type ServiceConfig struct {
	Principal       string
	HTTPAddr        string
	GRPCPort        string
	MetricsAddr     string
	ShutdownTimeout time.Duration
}

// STTConfig selects and tunes the server-side recognizer used in audio mode.
type STTConfig struct {
	Provider       string // mock, google, none (audio mode disabled)
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
	MockDelay      time.Duration
}

// ReadingConfig tunes validation and the statement catalog.
type ReadingConfig struct {
	Threshold       float64
	Debounce        time.Duration
	WordWeight      float64
	MinPrefixLen    int
	DefaultCategory string
	CatalogPath     string // empty uses the embedded catalog
	WatchCatalog    bool
}

// PhaseLimitsConfig bounds a single listening phase in audio mode.
type PhaseLimitsConfig struct {
	MaxAudioBytes int64
	MaxDuration   time.Duration
	MaxPartials   int
}

// GatewayConfig tunes the WebSocket gateway.
type GatewayConfig struct {
	WriteTimeout   time.Duration
	AllowedOrigins []string // empty allows same-origin requests only
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicProgress  string
	TopicCompleted string
	Principal      string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads the configuration from the environment. Unparseable values fall
// back to defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-consent-reading")

	return &Configuration{
		Service: ServiceConfig{
			Principal:       principal,
			HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
			GRPCPort:        envOrDefault("GRPC_PORT", "50051"),
			MetricsAddr:     envOrDefault("METRICS_ADDR", ":9090"),
			ShutdownTimeout: envOrDefaultDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			SampleRateHz:   int32(envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000)),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			MockDelay:      envOrDefaultDuration("STT_MOCK_DELAY", 50*time.Millisecond),
		},
		Reading: ReadingConfig{
			Threshold:       envOrDefaultFloat("READING_THRESHOLD", 0.4),
			Debounce:        envOrDefaultDuration("READING_DEBOUNCE", time.Second),
			WordWeight:      envOrDefaultFloat("READING_WORD_WEIGHT", 0.7),
			MinPrefixLen:    envOrDefaultInt("READING_MIN_PREFIX_LEN", 3),
			DefaultCategory: envOrDefault("READING_DEFAULT_CATEGORY", "digital-arrest"),
			CatalogPath:     os.Getenv("CATALOG_PATH"),
			WatchCatalog:    envOrDefaultBool("CATALOG_WATCH", false),
		},
		PhaseLimits: PhaseLimitsConfig{
			MaxAudioBytes: envOrDefaultInt64("PHASE_MAX_AUDIO_BYTES", 5*1024*1024),
			MaxDuration:   envOrDefaultDuration("PHASE_MAX_DURATION", 2*time.Minute),
			MaxPartials:   envOrDefaultInt("PHASE_MAX_PARTIALS", 500),
		},
		Gateway: GatewayConfig{
			WriteTimeout:   envOrDefaultDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			AllowedOrigins: envList("WS_ALLOWED_ORIGINS"),
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        envListOrDefault("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicProgress:  envOrDefault("KAFKA_TOPIC_PROGRESS", "consent.reading.progress"),
			TopicCompleted: envOrDefault("KAFKA_TOPIC_COMPLETED", "consent.reading.completed"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

// Validate reports every out-of-range setting.
func (c *Configuration) Validate() error {
	var errs []error
	if c.Reading.Threshold < 0 || c.Reading.Threshold > 1 {
		errs = append(errs, fmt.Errorf("READING_THRESHOLD must be within [0,1], got %v", c.Reading.Threshold))
	}
	if c.Reading.WordWeight < 0 || c.Reading.WordWeight > 1 {
		errs = append(errs, fmt.Errorf("READING_WORD_WEIGHT must be within [0,1], got %v", c.Reading.WordWeight))
	}
	if c.Reading.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("READING_DEBOUNCE must be positive, got %v", c.Reading.Debounce))
	}
	if c.Reading.MinPrefixLen < 1 {
		errs = append(errs, fmt.Errorf("READING_MIN_PREFIX_LEN must be at least 1, got %d", c.Reading.MinPrefixLen))
	}
	if c.Reading.WatchCatalog && c.Reading.CatalogPath == "" {
		errs = append(errs, errors.New("CATALOG_WATCH requires CATALOG_PATH"))
	}
	switch c.STT.Provider {
	case "mock", "google", "none":
	default:
		errs = append(errs, fmt.Errorf("STT_PROVIDER must be mock, google or none, got %q", c.STT.Provider))
	}
	if c.STT.SampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("STT_SAMPLE_RATE_HZ must be positive, got %d", c.STT.SampleRateHz))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_ENABLED requires KAFKA_BROKERS"))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envListOrDefault(key string, def []string) []string {
	if list := envList(key); len(list) > 0 {
		return list
	}
	return def
}
