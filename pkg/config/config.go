// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Embedder, Generator, Pipeline, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// IndexConfig locates the corpus and the two companion index artifacts.
type IndexConfig struct {
	CorpusDir        string   `yaml:"corpusDir"`
	Extensions       []string `yaml:"extensions"`
	VectorPath       string   `yaml:"vectorPath"`
	MappingPath      string   `yaml:"mappingPath"`
	BuildConcurrency int      `yaml:"buildConcurrency"`
}

// EmbedderConfig selects and configures the text embedder.
type EmbedderConfig struct {
	Type      string        `yaml:"type"`
	BaseURL   string        `yaml:"baseUrl"`
	APIKeyEnv string        `yaml:"apiKeyEnv"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batchSize"`
	Timeout   time.Duration `yaml:"timeout"`
}

// GeneratorConfig configures the remote chat-completion endpoint.
type GeneratorConfig struct {
	BaseURL        string               `yaml:"baseUrl"`
	APIKeyEnv      string               `yaml:"apiKeyEnv"`
	Model          string               `yaml:"model"`
	Temperature    float32              `yaml:"temperature"`
	TopP           float32              `yaml:"topP"`
	MaxTokens      int                  `yaml:"maxTokens"`
	Timeout        time.Duration        `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RetryConfig controls retries around the generation call. MaxAttempts of 1
// disables retrying.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// CircuitBreakerConfig controls when the generator stops calling a failing
// remote endpoint.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// PipelineConfig controls retrieval depth and context budgeting.
type PipelineConfig struct {
	DefaultK        int `yaml:"defaultK"`
	MaxK            int `yaml:"maxK"`
	MaxContextChars int `yaml:"maxContextChars"`
	SnippetChars    int `yaml:"snippetChars"`
	PreviewChars    int `yaml:"previewChars"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	SSLMode          string        `yaml:"sslMode"`
	MaxOpenConns     int           `yaml:"maxOpenConns"`
	MaxIdleConns     int           `yaml:"maxIdleConns"`
	ConnMaxLifetime  time.Duration `yaml:"connMaxLifetime"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	// SnapshotRetention caps stored snapshot rows; 0 keeps everything.
	SnapshotRetention int `yaml:"snapshotRetention"`
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
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	QueryEvents   string `yaml:"queryEvents"`
	IndexComplete string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and answer-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// RateLimitConfig controls the per-client token bucket on the query endpoint.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requestsPerWindow"`
	Window            time.Duration `yaml:"window"`
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
// overrides. It returns a Config populated with defaults for any missing
// values. A path that does not exist is an error; an empty path means
// "defaults plus environment".
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.MaxK < 1:
		return fmt.Errorf("%w: pipeline.maxK must be >= 1, got %d", apperrors.ErrConfiguration, p.MaxK)
	case p.DefaultK < 1 || p.DefaultK > p.MaxK:
		return fmt.Errorf("%w: pipeline.defaultK must be in [1,%d], got %d", apperrors.ErrConfiguration, p.MaxK, p.DefaultK)
	case p.MaxContextChars < 1:
		return fmt.Errorf("%w: pipeline.maxContextChars must be positive", apperrors.ErrConfiguration)
	case p.SnippetChars < 1:
		return fmt.Errorf("%w: pipeline.snippetChars must be positive", apperrors.ErrConfiguration)
	case p.PreviewChars < 1:
		return fmt.Errorf("%w: pipeline.previewChars must be positive", apperrors.ErrConfiguration)
	}
	if c.Index.VectorPath == "" || c.Index.MappingPath == "" {
		return fmt.Errorf("%w: index.vectorPath and index.mappingPath are required", apperrors.ErrConfiguration)
	}
	if c.Index.VectorPath == c.Index.MappingPath {
		return fmt.Errorf("%w: index.vectorPath and index.mappingPath must differ", apperrors.ErrConfiguration)
	}
	switch c.Embedder.Type {
	case "openai", "hash":
	default:
		return fmt.Errorf("%w: unknown embedder type %q", apperrors.ErrConfiguration, c.Embedder.Type)
	}
	if c.Embedder.Dimension < 1 {
		return fmt.Errorf("%w: embedder.dimension must be positive", apperrors.ErrConfiguration)
	}
	if c.Postgres.SnapshotRetention < 0 {
		return fmt.Errorf("%w: postgres.snapshotRetention must not be negative", apperrors.ErrConfiguration)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    75 * time.Second,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Index: IndexConfig{
			CorpusDir:        "data/text",
			Extensions:       []string{".txt"},
			VectorPath:       "data/index/index.vec",
			MappingPath:      "data/index/mapping.json",
			BuildConcurrency: 8,
		},
		Embedder: EmbedderConfig{
			Type:      "hash",
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Model:     "text-embedding-3-small",
			Dimension: 384,
			BatchSize: 64,
			Timeout:   30 * time.Second,
		},
		Generator: GeneratorConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			APIKeyEnv:   "GROQ_API_KEY",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.3,
			TopP:        0.9,
			MaxTokens:   500,
			Timeout:     45 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:  1,
				InitialDelay: 500 * time.Millisecond,
				MaxDelay:     5 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Pipeline: PipelineConfig{
			DefaultK:        3,
			MaxK:            10,
			MaxContextChars: 4000,
			SnippetChars:    1000,
			PreviewChars:    300,
		},
		Postgres: PostgresConfig{
			Host:              "localhost",
			Port:              5432,
			Database:          "docrag",
			User:              "docrag",
			Password:          "localdev",
			SSLMode:           "disable",
			MaxOpenConns:      10,
			MaxIdleConns:      2,
			ConnMaxLifetime:   5 * time.Minute,
			SnapshotInterval:  time.Minute,
			SnapshotRetention: 1440,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docrag-analytics",
			Topics: KafkaTopics{
				QueryEvents:   "rag-query-events",
				IndexComplete: "rag-index-complete",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 30,
			Window:            time.Minute,
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

// applyEnvOverrides reads RAG_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RAG_CORPUS_DIR"); v != "" {
		cfg.Index.CorpusDir = v
	}
	if v := os.Getenv("RAG_INDEX_VECTOR_PATH"); v != "" {
		cfg.Index.VectorPath = v
	}
	if v := os.Getenv("RAG_INDEX_MAPPING_PATH"); v != "" {
		cfg.Index.MappingPath = v
	}
	if v := os.Getenv("RAG_EMBEDDER_TYPE"); v != "" {
		cfg.Embedder.Type = v
	}
	if v := os.Getenv("RAG_EMBEDDER_MODEL"); v != "" {
		cfg.Embedder.Model = v
	}
	if v := os.Getenv("RAG_EMBEDDER_BASE_URL"); v != "" {
		cfg.Embedder.BaseURL = v
	}
	if v := os.Getenv("RAG_EMBEDDER_DIMENSION"); v != "" {
		if dim, err := strconv.Atoi(v); err == nil {
			cfg.Embedder.Dimension = dim
		}
	}
	if v := os.Getenv("RAG_GENERATOR_MODEL"); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("RAG_GENERATOR_BASE_URL"); v != "" {
		cfg.Generator.BaseURL = v
	}
	if v := os.Getenv("RAG_MAX_CONTEXT_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxContextChars = n
		}
	}
	if v := os.Getenv("RAG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("RAG_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("RAG_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RAG_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("RAG_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RAG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RAG_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
