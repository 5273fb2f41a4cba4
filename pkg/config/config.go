// Package config loads and validates featurehash configuration from YAML files
// with environment-variable overrides. A .env file next to the working
// directory is loaded first so local runs can keep FH_* settings out of the
// shell profile.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	RPC      RPCConfig      `yaml:"rpc"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Parser   ParserConfig   `yaml:"parser"`
	Stats    StatsConfig    `yaml:"stats"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RateLimitRPS is the per-client request rate; zero disables limiting.
	RateLimitRPS   float64  `yaml:"rateLimitRPS"`
	RateLimitBurst int      `yaml:"rateLimitBurst"`
	CORSOrigins    []string `yaml:"corsOrigins"`
}

// RPCConfig holds the JSON-over-TCP RPC listener settings.
type RPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Compression   string      `yaml:"compression"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RawExamples string `yaml:"rawExamples"`
	Featurized  string `yaml:"featurized"`
	DeadLetter  string `yaml:"deadLetter"`
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the parse cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ParserConfig controls how example lines are parsed and hashed.
type ParserConfig struct {
	HashSeed      uint64 `yaml:"hashSeed"`
	HashStrategy  string `yaml:"hashStrategy"`
	MaxLineLength int    `yaml:"maxLineLength"`
	StrictUTF8    bool   `yaml:"strictUTF8"`
	Workers       int    `yaml:"workers"`
	ErrorPolicy   string `yaml:"errorPolicy"`
	MaxBatchLines int    `yaml:"maxBatchLines"`
}

// StatsConfig controls parse statistics snapshots.
type StatsConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Parser.HashStrategy) {
	case "", "all", "strings":
	default:
		return fmt.Errorf("parser.hashStrategy: unknown value %q", c.Parser.HashStrategy)
	}
	switch strings.ToLower(c.Parser.ErrorPolicy) {
	case "", "failfast", "skip":
	default:
		return fmt.Errorf("parser.errorPolicy: unknown value %q", c.Parser.ErrorPolicy)
	}
	if c.Parser.Workers <= 0 {
		return fmt.Errorf("parser.workers must be positive, got %d", c.Parser.Workers)
	}
	if c.Parser.MaxLineLength < 0 {
		return fmt.Errorf("parser.maxLineLength must not be negative")
	}
	return nil
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  100,
		},
		RPC: RPCConfig{
			Enabled: true,
			Port:    9000,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "featurehash",
			User:            "featurehash",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "featurehash-workers",
			Compression:   "zstd",
			Topics: KafkaTopics{
				RawExamples: "examples.raw",
				Featurized:  "examples.featurized",
				DeadLetter:  "examples.dead-letter",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Parser: ParserConfig{
			HashSeed:      0,
			HashStrategy:  "all",
			MaxLineLength: 1 << 20,
			Workers:       8,
			ErrorPolicy:   "failfast",
			MaxBatchLines: 10000,
		},
		Stats: StatsConfig{
			SnapshotInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads FH_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FH_RPC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.RPC.Port = port
		}
	}
	if v := os.Getenv("FH_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FH_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FH_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FH_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FH_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FH_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("FH_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FH_KAFKA_COMPRESSION"); v != "" {
		cfg.Kafka.Compression = v
	}
	if v, ok := os.LookupEnv("FH_REDIS_ADDR"); ok {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FH_PARSER_HASH_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Parser.HashSeed = seed
		}
	}
	if v := os.Getenv("FH_PARSER_HASH_STRATEGY"); v != "" {
		cfg.Parser.HashStrategy = v
	}
	if v := os.Getenv("FH_PARSER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Parser.Workers = n
		}
	}
	if v := os.Getenv("FH_PARSER_ERROR_POLICY"); v != "" {
		cfg.Parser.ErrorPolicy = v
	}
	if v := os.Getenv("FH_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("FH_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FH_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
