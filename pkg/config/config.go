package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultPath is the config file read when no explicit path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for exim-agent.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Env      string         `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string         `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string         `yaml:"-"` // Set at load time, not from config
	MSSQL    MSSQLConfig    `yaml:"mssql"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Export   ExportConfig   `yaml:"export"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     int    `yaml:"port" env:"PORT" env-default:"5000"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddr, s.Port)
}

// MSSQLConfig holds the trade database connection settings.
type MSSQLConfig struct {
	Host                   string `yaml:"host" env:"MSSQL_HOST" env-default:"localhost"`
	Port                   int    `yaml:"port" env:"MSSQL_PORT" env-default:"1433"`
	Database               string `yaml:"database" env:"MSSQL_DATABASE" env-default:"TradeData"`
	User                   string `yaml:"user" env:"MSSQL_USER" env-default:""`
	Password               string `yaml:"-" env:"MSSQL_PASSWORD"` // Secret - not in YAML
	Encrypt                bool   `yaml:"encrypt" env:"MSSQL_ENCRYPT" env-default:"true"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"MSSQL_TRUST_SERVER_CERTIFICATE" env-default:"true"`
	ReadOnlyIntent         bool   `yaml:"read_only_intent" env:"MSSQL_READ_ONLY_INTENT" env-default:"true"`
	MaxOpenConns           int    `yaml:"max_open_conns" env:"MSSQL_MAX_OPEN_CONNS" env-default:"10"`
	ConnectTimeoutSeconds  int    `yaml:"connect_timeout_seconds" env:"MSSQL_CONNECT_TIMEOUT" env-default:"30"`
}

// LLMConfig selects and tunes the completion provider.
type LLMConfig struct {
	Provider            string `yaml:"provider" env:"LLM_PROVIDER" env-default:"gemini"`
	Model               string `yaml:"model" env:"LLM_MODEL" env-default:"gemini-2.5-flash"`
	APIKey              string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	BaseURL             string `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	MaxOutputTokens     int    `yaml:"max_output_tokens" env:"LLM_MAX_OUTPUT_TOKENS" env-default:"4096"`
	BreakerThreshold    int    `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetSeconds int    `yaml:"breaker_reset_seconds" env:"LLM_BREAKER_RESET" env-default:"30"`
}

// BreakerReset returns the circuit breaker reset interval.
func (c LLMConfig) BreakerReset() time.Duration {
	return time.Duration(c.BreakerResetSeconds) * time.Second
}

// PipelineConfig tunes the question-answering pipeline.
type PipelineConfig struct {
	RequestTimeoutSeconds      int      `yaml:"request_timeout_seconds" env:"PIPELINE_REQUEST_TIMEOUT" env-default:"120"`
	InsightMinRemainingSeconds int      `yaml:"insight_min_remaining_seconds" env:"PIPELINE_INSIGHT_MIN_REMAINING" env-default:"5"`
	ExportThreshold            int      `yaml:"export_threshold" env:"PIPELINE_EXPORT_THRESHOLD" env-default:"10000"`
	Tables                     []string `yaml:"tables" env:"PIPELINE_TABLES" env-separator:"," env-default:"View_Clean_Imports,View_Clean_Exports"`
}

// RequestTimeout is the end-to-end deadline for one question.
func (c PipelineConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// InsightMinRemaining is the minimum budget left before the narrative call is attempted.
func (c PipelineConfig) InsightMinRemaining() time.Duration {
	return time.Duration(c.InsightMinRemainingSeconds) * time.Second
}

// ExportConfig holds settings for background spreadsheet exports.
type ExportConfig struct {
	Dir                string `yaml:"dir" env:"EXPORT_DIR" env-default:"exports"`
	Workers            int    `yaml:"workers" env:"EXPORT_WORKERS" env-default:"2"`
	QueueSize          int    `yaml:"queue_size" env:"EXPORT_QUEUE_SIZE" env-default:"8"`
	Store              string `yaml:"store" env:"EXPORT_STORE" env-default:"memory"`
	SQLitePath         string `yaml:"sqlite_path" env:"EXPORT_SQLITE_PATH" env-default:"exports/jobs.db"`
	MaxJobs            int    `yaml:"max_jobs" env:"EXPORT_MAX_JOBS" env-default:"1024"`
	JobTTLHours        int    `yaml:"job_ttl_hours" env:"EXPORT_JOB_TTL_HOURS" env-default:"24"`
	FileRetentionHours int    `yaml:"file_retention_hours" env:"EXPORT_FILE_RETENTION_HOURS" env-default:"72"`
	SweepSchedule      string `yaml:"sweep_schedule" env:"EXPORT_SWEEP_SCHEDULE" env-default:"@every 1h"`
}

// JobTTL returns how long finished job entries are retained.
func (c ExportConfig) JobTTL() time.Duration {
	return time.Duration(c.JobTTLHours) * time.Hour
}

// FileRetention returns how long export files are kept on disk.
func (c ExportConfig) FileRetention() time.Duration {
	return time.Duration(c.FileRetentionHours) * time.Hour
}

// Load reads configuration with environment variable overrides.
// A .env file in the working directory is loaded into the environment first
// if present. When path names an existing file it is read as YAML, otherwise
// configuration comes from the environment alone.
func Load(path, version string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Version: version,
	}

	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Export.Store = strings.ToLower(strings.TrimSpace(c.Export.Store))

	tables := c.Pipeline.Tables[:0]
	for _, t := range c.Pipeline.Tables {
		if t = strings.TrimSpace(t); t != "" {
			tables = append(tables, t)
		}
	}
	c.Pipeline.Tables = tables
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Server.Port)
	}
	switch c.LLM.Provider {
	case "gemini", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Pipeline.ExportThreshold <= 0 {
		return fmt.Errorf("export_threshold must be positive")
	}
	if len(c.Pipeline.Tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}
	if c.Export.Workers <= 0 {
		return fmt.Errorf("export workers must be positive")
	}
	if c.Export.QueueSize < 0 {
		return fmt.Errorf("export queue_size cannot be negative")
	}
	switch c.Export.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown export store %q", c.Export.Store)
	}
	return nil
}
