package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Storage  StorageConfig
	Render   RenderConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Matcher  MatcherConfig
	Server   ServerConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" or "sqlite"
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// StorageConfig selects the object store holding bill PDFs and artifacts.
type StorageConfig struct {
	Backend string // "fs" or "gcs"
	Root    string // fs root directory
	Bucket  string // gcs bucket
}

// RenderConfig holds PDF rendering configuration
type RenderConfig struct {
	Pdftoppm string
	WorkDir  string
}

// LLMConfig holds extraction service configuration
type LLMConfig struct {
	Provider    string // "openai" or "vertex"
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	Project     string
	Location    string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PipelineConfig holds batch processing configuration
type PipelineConfig struct {
	Workers        int
	BatchLimit     int
	LeaseDuration  time.Duration
	ProcessTimeout time.Duration
	EstimateSkew   bool
	PollInterval   time.Duration
	InboxDir       string
	UploadedBy     string
}

// MatcherConfig holds entity matching configuration
type MatcherConfig struct {
	Threshold  float64
	DateWindow int // days
	DOSFrom    string
	DOSTo      string
	TopN       int
}

// ServerConfig holds daemon listener configuration
type ServerConfig struct {
	GRPCAddr    string
	MetricsAddr string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("SQLITE_PATH", "./tmp/provider-bills.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "fs"),
			Root:    getEnv("STORAGE_ROOT", "./tmp/store"),
			Bucket:  getEnv("GCS_BUCKET", ""),
		},
		Render: RenderConfig{
			Pdftoppm: getEnv("PDFTOPPM", "pdftoppm"),
			WorkDir:  getEnv("RENDER_WORK_DIR", ""),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "openai"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 90*time.Second),
			MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 4000),
			Project:     getEnv("VERTEX_PROJECT", ""),
			Location:    getEnv("VERTEX_LOCATION", "us-central1"),
			MaxAttempts: getEnvAsInt("EXTRACT_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("EXTRACT_RETRY_BASE", time.Second),
			MaxDelay:    getEnvAsDuration("EXTRACT_RETRY_MAX", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:        getEnvAsInt("PIPELINE_WORKERS", 4),
			BatchLimit:     getEnvAsInt("PIPELINE_BATCH_LIMIT", 100),
			LeaseDuration:  getEnvAsDuration("PIPELINE_LEASE", 10*time.Minute),
			ProcessTimeout: getEnvAsDuration("PIPELINE_PROCESS_TIMEOUT", 5*time.Minute),
			EstimateSkew:   getEnvAsBool("PIPELINE_ESTIMATE_SKEW", true),
			PollInterval:   getEnvAsDuration("PIPELINE_POLL_INTERVAL", time.Minute),
			InboxDir:       getEnv("INBOX_DIR", ""),
			UploadedBy:     getEnv("UPLOADED_BY", "intake"),
		},
		Matcher: MatcherConfig{
			Threshold:  getEnvAsFloat64("MATCH_THRESHOLD", 0.80),
			DateWindow: getEnvAsInt("MATCH_DATE_WINDOW_DAYS", 21),
			DOSFrom:    getEnv("MATCH_DOS_FROM", "2024-01-01"),
			DOSTo:      getEnv("MATCH_DOS_TO", "2025-12-31"),
			TopN:       getEnvAsInt("MATCH_DIAGNOSTIC_TOP", 10),
		},
		Server: ServerConfig{
			GRPCAddr:    getEnv("GRPC_ADDR", ":8080"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration and reports every problem at once.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("DB_DRIVER", c.Database.Driver, OneOf("postgres", "sqlite"))
	switch c.Database.Driver {
	case "postgres":
		v.Field("DB_URL", c.Database.DSN, Required)
	case "sqlite":
		v.Field("SQLITE_PATH", c.Database.SQLitePath, Required)
	}
	v.Field("STORAGE_BACKEND", c.Storage.Backend, OneOf("fs", "gcs"))
	switch c.Storage.Backend {
	case "fs":
		v.Field("STORAGE_ROOT", c.Storage.Root, Required)
	case "gcs":
		v.Field("GCS_BUCKET", c.Storage.Bucket, Required)
	}
	v.Field("MATCH_THRESHOLD", c.Matcher.Threshold, InRange(0, 1))
	v.Field("PIPELINE_WORKERS", c.Pipeline.Workers, Positive)
	v.Field("LOG_FORMAT", c.Log.Format, OneOf("text", "json"))
	return v.AppError("CONFIG_ERROR")
}

// ValidateLLM checks the extraction provider settings. Only commands that
// extract call it, so mapping and export run without credentials.
func (c *Config) ValidateLLM() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.APIKey == "" {
			return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
		}
	case "vertex":
		if c.LLM.Project == "" {
			return NewAppError("CONFIG_ERROR", "VERTEX_PROJECT is required", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "LLM_PROVIDER must be openai or vertex", ErrInvalidInput)
	}
	return nil
}
