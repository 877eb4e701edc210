// Package config loads and watches the skein configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for the skein system.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Queue        QueueConfig        `yaml:"queue"`
	Redis        RedisConfig        `yaml:"redis"`
	NATS         NATSConfig         `yaml:"nats"`
	Provider     ProviderConfig     `yaml:"provider"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer"`
	Learning     LearningConfig     `yaml:"learning"`

	// SystemVersion is stamped onto experience records.
	SystemVersion string `yaml:"system_version"`
}

// ServerConfig configures the HTTP surface (metrics endpoint).
type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
}

// DatabaseConfig configures the durable stores.
type DatabaseConfig struct {
	Type string `yaml:"type"` // "sqlite", "postgres", "memory"
	Path string `yaml:"path"` // For SQLite
	DSN  string `yaml:"dsn"`  // For Postgres
}

// QueueConfig selects the queue backend.
type QueueConfig struct {
	Backend string `yaml:"backend"` // "memory", "redis", "nats"
}

// RedisConfig configures the Redis queue backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig configures the JetStream queue backend.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// ProviderConfig configures the LLM provider.
type ProviderConfig struct {
	Endpoint        string  `yaml:"endpoint"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// OrchestratorConfig tunes the planning pipeline.
type OrchestratorConfig struct {
	StageTimeout         time.Duration `yaml:"stage_timeout"`
	MinInsightConfidence float64       `yaml:"min_insight_confidence"`
}

// AnalyzerConfig tunes repository analysis.
type AnalyzerConfig struct {
	WorkDir      string `yaml:"work_dir"`
	Concurrency  int    `yaml:"concurrency"`
	MaxFileBytes int    `yaml:"max_file_bytes"`
	MaxMainFiles int    `yaml:"max_main_files"`
}

// LearningConfig tunes the experience and insight loop.
type LearningConfig struct {
	AnalysisInterval      time.Duration `yaml:"analysis_interval"`
	MaxBatchSize          int           `yaml:"max_batch_size"`
	MinConfidenceValidate float64       `yaml:"min_confidence_validate"`
	MinConfidenceSuggest  float64       `yaml:"min_confidence_suggest"`
	StaleAfter            time.Duration `yaml:"stale_after"`
	// RetentionWindow bounds how long experiences are kept. Zero keeps
	// them forever.
	RetentionWindow time.Duration `yaml:"retention_window"`
	RecorderBuffer  int           `yaml:"recorder_buffer"`
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			MetricsAddr: ":9109",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./skein.db",
		},
		Queue: QueueConfig{
			Backend: "memory",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Provider: ProviderConfig{
			Endpoint:        "http://localhost:11434/v1",
			Model:           "llama3.1",
			Temperature:     0.2,
			MaxOutputTokens: 4096,
		},
		Orchestrator: OrchestratorConfig{
			StageTimeout:         120 * time.Second,
			MinInsightConfidence: 0.75,
		},
		Analyzer: AnalyzerConfig{
			WorkDir:      os.TempDir(),
			Concurrency:  4,
			MaxFileBytes: 16 * 1024,
			MaxMainFiles: 50,
		},
		Learning: LearningConfig{
			AnalysisInterval:      time.Minute,
			MaxBatchSize:          100,
			MinConfidenceValidate: 0.5,
			MinConfidenceSuggest:  0.75,
			StaleAfter:            14 * 24 * time.Hour,
			RetentionWindow:       90 * 24 * time.Hour,
			RecorderBuffer:        256,
		},
		SystemVersion: "dev",
	}
}

// LoadFromFile loads configuration from a YAML file, layered over the
// defaults. Environment variable references in the file (e.g.
// ${SKEIN_API_KEY}) are expanded before parsing.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load returns the configuration from path when it is non-empty, the
// defaults plus environment overrides otherwise.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	cfg := Default()
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override the file
// without editing it.
func (c *Config) applyEnvOverrides() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("SKEIN_METRICS_ADDR", &c.Server.MetricsAddr)
	setString("SKEIN_DB_TYPE", &c.Database.Type)
	setString("SKEIN_DB_PATH", &c.Database.Path)
	setString("SKEIN_DB_DSN", &c.Database.DSN)
	setString("SKEIN_QUEUE_BACKEND", &c.Queue.Backend)
	setString("SKEIN_REDIS_ADDR", &c.Redis.Addr)
	setString("SKEIN_NATS_URL", &c.NATS.URL)
	setString("SKEIN_PROVIDER_ENDPOINT", &c.Provider.Endpoint)
	setString("SKEIN_PROVIDER_API_KEY", &c.Provider.APIKey)
	setString("SKEIN_PROVIDER_MODEL", &c.Provider.Model)
	setString("SKEIN_SYSTEM_VERSION", &c.SystemVersion)

	if v := os.Getenv("SKEIN_PROVIDER_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Provider.Temperature = f
		}
	}
	if v := os.Getenv("SKEIN_STAGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Orchestrator.StageTimeout = d
		}
	}
	if v := os.Getenv("SKEIN_ANALYSIS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Learning.AnalysisInterval = d
		}
	}
}

// Validate rejects configurations that cannot be wired.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}

	switch c.Queue.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis queue backend")
		}
	case "nats":
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required for the nats queue backend")
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	if c.Provider.Endpoint == "" {
		return fmt.Errorf("provider.endpoint is required")
	}
	if c.Learning.MinConfidenceValidate < 0 || c.Learning.MinConfidenceValidate > 1 {
		return fmt.Errorf("learning.min_confidence_validate must be in [0,1]")
	}
	if c.Learning.MinConfidenceSuggest < 0 || c.Learning.MinConfidenceSuggest > 1 {
		return fmt.Errorf("learning.min_confidence_suggest must be in [0,1]")
	}
	return nil
}
