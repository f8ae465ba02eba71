package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Warehouse backends.
const (
	BackendPostgres = "postgres"
	BackendDuckDB   = "duckdb"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	WarehouseBackend string
	DatabaseURL      string
	DatabaseMaxConns int32
	DuckDBPath       string

	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaGroupID     string
	DeadLetterTopic  string
	StreamTable      string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	KnownKeyCacheSize int
	BathymetryWorkers int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	maxConns, err := parsePositiveInt("DATABASE_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseNonNegativeInt("KNOWN_KEY_CACHE_SIZE", 100_000)
	if err != nil {
		return nil, err
	}
	workers, err := parsePositiveInt("BATHYMETRY_WORKERS", 8)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		WarehouseBackend: sharedcfg.EnvOrDefault("WAREHOUSE_BACKEND", BackendDuckDB),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabaseMaxConns: int32(maxConns),
		DuckDBPath:       sharedcfg.EnvOrDefault("DUCKDB_PATH", "fishtank.duckdb"),

		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "tag-positions"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "fishtank-etl"),
		DeadLetterTopic:  os.Getenv("DEAD_LETTER_TOPIC"),
		StreamTable:      sharedcfg.EnvOrDefault("STREAM_TABLE", "tag_stream"),

		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		KnownKeyCacheSize: cacheSize,
		BathymetryWorkers: workers,
	}

	switch cfg.WarehouseBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when WAREHOUSE_BACKEND is postgres")
		}
	case BackendDuckDB:
	default:
		return nil, fmt.Errorf("invalid WAREHOUSE_BACKEND %q: must be %s or %s", cfg.WarehouseBackend, BackendPostgres, BackendDuckDB)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.DeadLetterTopic != "" && cfg.DeadLetterTopic == cfg.KafkaSourceTopic {
		return nil, errors.New("DEAD_LETTER_TOPIC must differ from KAFKA_SOURCE_TOPIC")
	}

	return cfg, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	n, err := parseNonNegativeInt(name, def)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return n, nil
}

func parseNonNegativeInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return n, nil
}
