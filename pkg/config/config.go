package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Staging  StagingConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Workflow WorkflowConfig
	Sync     SyncConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// StagingConfig points at the Component2020 staging database (the Access
// source exported into Postgres staging tables).
type StagingConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// WorkflowConfig tunes the request workflow engine.
type WorkflowConfig struct {
	TransitionCacheTTL time.Duration
	PermissionCacheTTL time.Duration
}

// SyncConfig tunes the Component2020 synchronization coordinator.
type SyncConfig struct {
	Enabled           bool
	PageSize          int
	WorkerConcurrency int
	WorkerRetries     int
	RunTimeout        time.Duration
}

// ExportsConfig toggles CSV/PDF report generation.
type ExportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Staging = StagingConfig{
		Host:     v.GetString("STAGING_DB_HOST"),
		Port:     v.GetInt("STAGING_DB_PORT"),
		User:     v.GetString("STAGING_DB_USER"),
		Password: v.GetString("STAGING_DB_PASSWORD"),
		Name:     v.GetString("STAGING_DB_NAME"),
		SSLMode:  v.GetString("STAGING_DB_SSL_MODE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Workflow = WorkflowConfig{
		TransitionCacheTTL: parseDuration(v.GetString("WORKFLOW_TRANSITION_CACHE_TTL"), 10*time.Minute),
		PermissionCacheTTL: parseDuration(v.GetString("WORKFLOW_PERMISSION_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Sync = SyncConfig{
		Enabled:           v.GetBool("ENABLE_SYNC"),
		PageSize:          v.GetInt("SYNC_PAGE_SIZE"),
		WorkerConcurrency: v.GetInt("SYNC_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("SYNC_WORKER_RETRIES"),
		RunTimeout:        parseDuration(v.GetString("SYNC_RUN_TIMEOUT"), 30*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "myis")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("STAGING_DB_HOST", "localhost")
	v.SetDefault("STAGING_DB_PORT", 5432)
	v.SetDefault("STAGING_DB_USER", "postgres")
	v.SetDefault("STAGING_DB_PASSWORD", "postgres")
	v.SetDefault("STAGING_DB_NAME", "component2020_staging")
	v.SetDefault("STAGING_DB_SSL_MODE", "disable")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "myis")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("WORKFLOW_TRANSITION_CACHE_TTL", "10m")
	v.SetDefault("WORKFLOW_PERMISSION_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_SYNC", true)
	v.SetDefault("SYNC_PAGE_SIZE", 500)
	v.SetDefault("SYNC_WORKER_CONCURRENCY", 1)
	v.SetDefault("SYNC_WORKER_RETRIES", 1)
	v.SetDefault("SYNC_RUN_TIMEOUT", "30m")

	v.SetDefault("ENABLE_EXPORTS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
