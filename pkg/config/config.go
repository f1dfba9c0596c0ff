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

	Database   DatabaseConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduler  SchedulerConfig
	Directions DirectionsConfig
	Exports    ExportsConfig
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

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig tunes the assignment engine.
type SchedulerConfig struct {
	HighTierPriority int
	MaxAssignRounds  int
	FairnessGapSlots int
	MaxPartialBlocks int
}

// DirectionsConfig configures the external directions service and its caches.
type DirectionsConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	DefaultMinutes int
	CacheSize      int
	CacheTTL       time.Duration
	RedisTier      bool
}

// ExportsConfig configures schedule export generation.
type ExportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	WorkerConcurrency int
	WorkerRetries     int
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

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		HighTierPriority: v.GetInt("SCHEDULER_HIGH_TIER_PRIORITY"),
		MaxAssignRounds:  v.GetInt("SCHEDULER_MAX_ASSIGN_ROUNDS"),
		FairnessGapSlots: v.GetInt("SCHEDULER_FAIRNESS_GAP_SLOTS"),
		MaxPartialBlocks: v.GetInt("SCHEDULER_MAX_PARTIAL_BLOCKS"),
	}

	cfg.Directions = DirectionsConfig{
		BaseURL:        v.GetString("DIRECTIONS_BASE_URL"),
		APIKey:         v.GetString("DIRECTIONS_API_KEY"),
		Timeout:        parseDuration(v.GetString("DIRECTIONS_TIMEOUT"), 10*time.Second),
		DefaultMinutes: v.GetInt("DIRECTIONS_DEFAULT_MINUTES"),
		CacheSize:      v.GetInt("DIRECTIONS_CACHE_SIZE"),
		CacheTTL:       parseDuration(v.GetString("DIRECTIONS_CACHE_TTL"), 24*time.Hour),
		RedisTier:      v.GetBool("DIRECTIONS_REDIS_TIER"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:           v.GetBool("EXPORTS_ENABLED"),
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
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
	v.SetDefault("DB_NAME", "slotwise")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_HIGH_TIER_PRIORITY", 5)
	v.SetDefault("SCHEDULER_MAX_ASSIGN_ROUNDS", 64)
	v.SetDefault("SCHEDULER_FAIRNESS_GAP_SLOTS", 2)
	v.SetDefault("SCHEDULER_MAX_PARTIAL_BLOCKS", 3)

	v.SetDefault("DIRECTIONS_BASE_URL", "http://localhost:9090")
	v.SetDefault("DIRECTIONS_TIMEOUT", "10s")
	v.SetDefault("DIRECTIONS_DEFAULT_MINUTES", 20)
	v.SetDefault("DIRECTIONS_CACHE_SIZE", 4096)
	v.SetDefault("DIRECTIONS_CACHE_TTL", "24h")
	v.SetDefault("DIRECTIONS_REDIS_TIER", true)

	v.SetDefault("EXPORTS_ENABLED", true)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 2)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)
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
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
