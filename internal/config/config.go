package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Import     ImportConfig     `yaml:"import"`
	ListSource ListSourceConfig `yaml:"list_source"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int      `yaml:"port"`
	Host               string   `yaml:"host"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	ShutdownTimeoutSec int      `yaml:"shutdown_timeout_seconds"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ShutdownTimeout returns the graceful shutdown window.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// DatabaseConfig holds PostgreSQL configuration. An empty URL runs the
// contact store in memory.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis configuration. An empty URL keeps batches and
// job progress in process memory.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig holds raw upload archive configuration
type StorageConfig struct {
	Type         string `yaml:"type"` // "local" or "s3"
	LocalPath    string `yaml:"local_path"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Prefix     string `yaml:"s3_prefix"`
	S3Endpoint   string `yaml:"s3_endpoint"` // S3-compatible endpoint, e.g. MinIO
	AWSRegion    string `yaml:"aws_region"`
	AWSProfile   string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	AWSAccessKey string `yaml:"aws_access_key"`
	AWSSecretKey string `yaml:"aws_secret_key"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// ImportConfig holds batch and job defaults
type ImportConfig struct {
	BatchTTLHours       int    `yaml:"batch_ttl_hours"`
	SampleRows          int    `yaml:"sample_rows"`
	DefaultCountry      string `yaml:"default_country"`
	DefaultSeparator    string `yaml:"default_separator"`
	DefaultPolicy       string `yaml:"default_policy"`
	MaxUploadBytes      int64  `yaml:"max_upload_bytes"`
	CommitLockMinutes   int    `yaml:"commit_lock_minutes"`
	JobRetentionMinutes int    `yaml:"job_retention_minutes"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	ProgressTTLHours    int    `yaml:"progress_ttl_hours"`
}

// BatchTTL returns how long uncommitted batches are kept.
func (c ImportConfig) BatchTTL() time.Duration {
	return time.Duration(c.BatchTTLHours) * time.Hour
}

// CommitLockTTL returns the lifetime of the per-batch commit lock.
func (c ImportConfig) CommitLockTTL() time.Duration {
	return time.Duration(c.CommitLockMinutes) * time.Minute
}

// JobRetention returns how long finished jobs stay in the local registry.
func (c ImportConfig) JobRetention() time.Duration {
	return time.Duration(c.JobRetentionMinutes) * time.Minute
}

// FetchTimeout returns the deadline for fetching one external list.
func (c ImportConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// ProgressTTL returns how long job snapshots are kept in Redis.
func (c ImportConfig) ProgressTTL() time.Duration {
	return time.Duration(c.ProgressTTLHours) * time.Hour
}

// ListSourceConfig holds third-party list API configuration
type ListSourceConfig struct {
	BaseURL        string   `yaml:"base_url"`
	TokenURL       string   `yaml:"token_url"`
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	Scopes         []string `yaml:"scopes"`
	APIKey         string   `yaml:"api_key"`
	PageSize       int      `yaml:"page_size"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	MaxRetries     int      `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c ListSourceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ShutdownTimeoutSec == 0 {
		cfg.Server.ShutdownTimeoutSec = 30
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data/imports"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Import.BatchTTLHours == 0 {
		cfg.Import.BatchTTLHours = 24
	}
	if cfg.Import.SampleRows == 0 {
		cfg.Import.SampleRows = 5
	}
	if cfg.Import.DefaultCountry == "" {
		cfg.Import.DefaultCountry = "US"
	}
	if cfg.Import.DefaultSeparator == "" {
		cfg.Import.DefaultSeparator = ";"
	}
	if cfg.Import.DefaultPolicy == "" {
		cfg.Import.DefaultPolicy = "UPDATE_EXISTING"
	}
	if cfg.Import.MaxUploadBytes == 0 {
		cfg.Import.MaxUploadBytes = 50 << 20
	}
	if cfg.Import.CommitLockMinutes == 0 {
		cfg.Import.CommitLockMinutes = 30
	}
	if cfg.Import.JobRetentionMinutes == 0 {
		cfg.Import.JobRetentionMinutes = 60
	}
	if cfg.Import.FetchTimeoutSeconds == 0 {
		cfg.Import.FetchTimeoutSeconds = 300
	}
	if cfg.Import.ProgressTTLHours == 0 {
		cfg.Import.ProgressTTLHours = 24
	}
	if cfg.ListSource.PageSize == 0 {
		cfg.ListSource.PageSize = 500
	}
	if cfg.ListSource.TimeoutSeconds == 0 {
		cfg.ListSource.TimeoutSeconds = 60
	}
	if cfg.ListSource.MaxRetries == 0 {
		cfg.ListSource.MaxRetries = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.RedactPII == nil {
		on := true
		cfg.Logging.RedactPII = &on
	}
}

// LoadFromEnv loads the config file, then applies .env and environment
// overrides.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	// Database and Redis overrides (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("IMPORT_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.AWSRegion = v
	}
	if v := os.Getenv("IMPORT_S3_ACCESS_KEY"); v != "" {
		cfg.Storage.AWSAccessKey = v
	}
	if v := os.Getenv("IMPORT_S3_SECRET_KEY"); v != "" {
		cfg.Storage.AWSSecretKey = v
	}

	if v := os.Getenv("IMPORT_DEFAULT_COUNTRY"); v != "" {
		cfg.Import.DefaultCountry = strings.ToUpper(v)
	}
	if v := os.Getenv("IMPORT_DEFAULT_POLICY"); v != "" {
		cfg.Import.DefaultPolicy = strings.ToUpper(v)
	}
	if v := os.Getenv("IMPORT_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Import.MaxUploadBytes = n
		}
	}

	if v := os.Getenv("LIST_SOURCE_BASE_URL"); v != "" {
		cfg.ListSource.BaseURL = v
	}
	if v := os.Getenv("LIST_SOURCE_TOKEN_URL"); v != "" {
		cfg.ListSource.TokenURL = v
	}
	if v := os.Getenv("LIST_SOURCE_CLIENT_ID"); v != "" {
		cfg.ListSource.ClientID = v
	}
	if v := os.Getenv("LIST_SOURCE_CLIENT_SECRET"); v != "" {
		cfg.ListSource.ClientSecret = v
	}
	if v := os.Getenv("LIST_SOURCE_API_KEY"); v != "" {
		cfg.ListSource.APIKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
