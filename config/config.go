package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Reasoning  ReasoningConfig  `mapstructure:"reasoning"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Compliance ComplianceConfig `mapstructure:"compliance"`
	Corpus     CorpusConfig     `mapstructure:"corpus"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	if s.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout cannot be negative")
	}
	return nil
}

// StorageConfig selects and configures the key-value backend.
type StorageConfig struct {
	Backend       string         `mapstructure:"backend"` // redis, postgres, memory
	Redis         RedisConfig    `mapstructure:"redis"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
	MigrationsDir string         `mapstructure:"migrations_dir"`
}

func (s StorageConfig) Validate() error {
	switch s.Backend {
	case "redis":
		return s.Redis.Validate()
	case "postgres":
		return s.Postgres.Validate()
	case "memory":
		return nil
	default:
		return fmt.Errorf("storage.backend must be redis, postgres or memory, got %q", s.Backend)
	}
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the connection URL, building one from the discrete fields when url is unset.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// EmbeddingConfig picks the text embedding provider.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"` // openai, hashing
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BatchSize  int           `mapstructure:"batch_size"`
	MaxRetries int           `mapstructure:"max_retries"`
}

func (e EmbeddingConfig) Validate() error {
	if e.Provider != "openai" && e.Provider != "hashing" {
		return fmt.Errorf("embedding.provider must be openai or hashing, got %q", e.Provider)
	}
	if e.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be > 0")
	}
	return nil
}

// ReasoningConfig configures the chat-completions endpoint used for classification.
type ReasoningConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Temperature   float64       `mapstructure:"temperature"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

func (r ReasoningConfig) Validate() error {
	if strings.TrimSpace(r.BaseURL) == "" {
		return fmt.Errorf("reasoning.base_url required")
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("reasoning.timeout must be > 0")
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("reasoning.temperature must be within [0,2]")
	}
	return nil
}

// RetrievalConfig controls chunking and similarity search.
type RetrievalConfig struct {
	ChunkSize    int     `mapstructure:"chunk_size"`
	ChunkOverlap int     `mapstructure:"chunk_overlap"`
	TopK         int     `mapstructure:"top_k"`
	MinScore     float64 `mapstructure:"min_score"`
}

func (r RetrievalConfig) Validate() error {
	if r.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be > 0")
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be within [0, chunk_size)")
	}
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	if r.MinScore < -1 || r.MinScore >= 1 {
		return fmt.Errorf("retrieval.min_score must be within [-1, 1)")
	}
	return nil
}

type ComplianceConfig struct {
	Parallelism int    `mapstructure:"parallelism"`
	CatalogFile string `mapstructure:"catalog_file"`
}

// Normalize applies defaults for unset values.
func (c ComplianceConfig) Normalize() ComplianceConfig {
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	c.CatalogFile = strings.TrimSpace(c.CatalogFile)
	return c
}

// CorpusConfig points at the document folders.
type CorpusConfig struct {
	SOPDir    string `mapstructure:"sop_dir"`
	SampleDir string `mapstructure:"sample_dir"`
}

// Normalize cleans the configured paths.
func (c CorpusConfig) Normalize() CorpusConfig {
	if c.SOPDir != "" {
		c.SOPDir = filepath.Clean(c.SOPDir)
	}
	if c.SampleDir != "" {
		c.SampleDir = filepath.Clean(c.SampleDir)
	}
	return c
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Validate aggregates every section's validation error.
func (c *Config) Validate() error {
	return errors.Join(
		c.Server.Validate(),
		c.Storage.Validate(),
		c.Embedding.Validate(),
		c.Reasoning.Validate(),
		c.Retrieval.Validate(),
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout", 5*time.Minute)

	v.SetDefault("storage.backend", "redis")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.migrations_dir", "migrations")

	v.SetDefault("embedding.provider", "hashing")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.max_retries", 2)

	v.SetDefault("reasoning.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("reasoning.api_key", "")
	v.SetDefault("reasoning.model", "llama-3.3-70b-versatile")
	v.SetDefault("reasoning.temperature", 0.1)
	v.SetDefault("reasoning.max_tokens", 4000)
	v.SetDefault("reasoning.timeout", 60*time.Second)
	v.SetDefault("reasoning.rate_per_second", 2.0)
	v.SetDefault("reasoning.burst", 4)

	v.SetDefault("retrieval.chunk_size", 500)
	v.SetDefault("retrieval.chunk_overlap", 50)
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.min_score", 0.3)

	v.SetDefault("compliance.parallelism", 4)
	v.SetDefault("compliance.catalog_file", "")

	v.SetDefault("corpus.sop_dir", "data/sops")
	v.SetDefault("corpus.sample_dir", "data/deviation_samples")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "sopguard")
}

// LoadConfig reads config.yaml from ./config or the working directory (or path when
// given), overlays SOPGUARD_* environment variables, and validates the result.
// A missing config file is not an error when no explicit path was given.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Join(filepath.Dir(exe), "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SOPGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Compliance = cfg.Compliance.Normalize()
	cfg.Corpus = cfg.Corpus.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
