package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/transit-fraud/internal/models"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are loaded from environment variables with defaults that let the
// binary run locally on the in-memory stores.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Stores

	KafkaBrokers []string
	SwipeTopic   string
	AnomalyTopic string

	WebhookURL   string
	WebhookToken string

	HistoryLimit int

	LogLevel      string
	RunMigrations bool
	MigrationsDir string
}

// Stores selects the backing stores. Empty DSNs and addresses mean the
// in-memory implementations.
type Stores struct {
	PGDSN    string
	GraphDSN string
	// SeedDir is a CSV directory loaded into the in-memory stores at start.
	SeedDir string

	RedisAddr     string
	RedisPassword string
	LockPrefix    string
	LockTTL       time.Duration
}

// ConsumerConfig is the swipe consumer's configuration.
type ConsumerConfig struct {
	MetricsAddr string

	Stores

	KafkaBrokers  []string
	SwipeTopic    string
	AnomalyTopic  string
	ConsumerGroup string

	RecordAttempts int
	RetryDelay     time.Duration

	LogLevel string
}

func defaultStores() Stores {
	return Stores{LockPrefix: "transit-fraud:", LockTTL: 5 * time.Second}
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		Stores:          defaultStores(),
		SwipeTopic:      "card-swipes",
		AnomalyTopic:    "card-anomalies",
		HistoryLimit:    25,
		LogLevel:        "info",
		MigrationsDir:   "migrations",
	}
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MetricsAddr:    ":2112",
		Stores:         defaultStores(),
		KafkaBrokers:   []string{"localhost:9092"},
		SwipeTopic:     "card-swipes",
		AnomalyTopic:   "card-anomalies",
		ConsumerGroup:  "transit-fraud-detector",
		RecordAttempts: 3,
		RetryDelay:     200 * time.Millisecond,
		LogLevel:       "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	loadStores(&cfg.Stores, &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.SwipeTopic, "KAFKA_SWIPE_TOPIC")
	setStringFromEnv(&cfg.AnomalyTopic, "KAFKA_ANOMALY_TOPIC")

	cfg.WebhookURL = strings.TrimSpace(os.Getenv("ANOMALY_WEBHOOK_URL"))
	cfg.WebhookToken = os.Getenv("ANOMALY_WEBHOOK_TOKEN")

	setIntFromEnv(&cfg.HistoryLimit, "HISTORY_LIMIT", &errs)
	setLogLevel(&cfg.LogLevel)

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")
	setStringFromEnv(&cfg.MigrationsDir, "MIGRATIONS_DIR")

	if cfg.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be > 0"))
	}
	if cfg.RunMigrations && cfg.PGDSN == "" {
		errs = append(errs, fmt.Errorf("MIGRATE requires PG_DSN"))
	}

	return cfg, wrap(errs)
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := defaultConsumerConfig()
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	loadStores(&cfg.Stores, &errs)

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = os.Getenv("KAFKA_BROKER")
	}
	if brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.SwipeTopic, "KAFKA_SWIPE_TOPIC")
	setStringFromEnv(&cfg.AnomalyTopic, "KAFKA_ANOMALY_TOPIC")
	setStringFromEnv(&cfg.ConsumerGroup, "KAFKA_GROUP")

	setIntFromEnv(&cfg.RecordAttempts, "RECORD_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "RECORD_RETRY_DELAY", &errs)
	setLogLevel(&cfg.LogLevel)

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.RecordAttempts <= 0 {
		errs = append(errs, fmt.Errorf("RECORD_ATTEMPTS must be > 0"))
	}

	return cfg, wrap(errs)
}

func loadStores(s *Stores, errs *[]error) {
	s.PGDSN = strings.TrimSpace(os.Getenv("PG_DSN"))
	s.GraphDSN = strings.TrimSpace(os.Getenv("GRAPH_DSN"))
	if s.GraphDSN == "" {
		s.GraphDSN = s.PGDSN
	}
	s.SeedDir = strings.TrimSpace(os.Getenv("SEED_DIR"))
	s.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	s.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&s.LockPrefix, "LOCK_PREFIX")
	setDurationFromEnv(&s.LockTTL, "LOCK_TTL", errs)
	if s.LockTTL <= 0 {
		*errs = append(*errs, fmt.Errorf("LOCK_TTL must be > 0"))
	}
}

func wrap(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", models.ErrConfig, errors.Join(errs...))
}

func setLogLevel(target *string) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		*target = strings.ToLower(v)
	}
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
