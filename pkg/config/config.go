package config

import (
	"errors"
	"os"
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

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Dashboard    DashboardConfig
	Backup       BackupConfig
	Registration RegistrationConfig
	RateLimit    RateLimitConfig
}

// DatabaseConfig locates PostgreSQL. URL, when set, overrides the discrete
// connection fields.
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnectAttempts int
}

// RedisConfig locates the optional cache. URL, when set, overrides the
// discrete connection fields.
type RedisConfig struct {
	Enabled   bool
	URL       string
	Host      string
	Port      int
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
	MaxAgeSeconds  int
}

type LogConfig struct {
	Level  string
	Format string
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheTTL time.Duration
}

// BackupConfig controls snapshot storage, scheduling and restore limits.
type BackupConfig struct {
	ScheduleEnabled bool
	Cron            string
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	Retention       time.Duration
	WorkerRetries   int
	MaxUploadBytes  int64
}

// RegistrationConfig tunes registration number allocation.
type RegistrationConfig struct {
	MaxRetries int
}

// RateLimitConfig throttles login attempts per client IP.
type RateLimitConfig struct {
	LoginRPS   float64
	LoginBurst int
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		URL:             v.GetString("DATABASE_URL"),
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnectAttempts: v.GetInt("DB_CONNECT_ATTEMPTS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:   v.GetBool("REDIS_ENABLED"),
		URL:       v.GetString("REDIS_URL"),
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		PoolSize:  v.GetInt("REDIS_POOL_SIZE"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		MaxAgeSeconds:  v.GetInt("CORS_MAX_AGE_SECONDS"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	maxUpload := v.GetInt64("RESTORE_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	cfg.Backup = BackupConfig{
		ScheduleEnabled: v.GetBool("BACKUP_SCHEDULE_ENABLED"),
		Cron:            v.GetString("BACKUP_CRON"),
		StorageDir:      v.GetString("BACKUP_STORAGE_DIR"),
		SignedURLSecret: v.GetString("BACKUP_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("BACKUP_SIGNED_URL_TTL"), 30*time.Minute),
		Retention:       parseDuration(v.GetString("BACKUP_RETENTION"), 30*24*time.Hour),
		WorkerRetries:   v.GetInt("BACKUP_WORKER_RETRIES"),
		MaxUploadBytes:  maxUpload,
	}

	cfg.Registration = RegistrationConfig{
		MaxRetries: v.GetInt("REGISTRATION_MAX_RETRIES"),
	}

	cfg.RateLimit = RateLimitConfig{
		LoginRPS:   v.GetFloat64("LOGIN_RATE_LIMIT_RPS"),
		LoginBurst: v.GetInt("LOGIN_RATE_LIMIT_BURST"),
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
	v.SetDefault("DB_NAME", "academy_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONNECT_ATTEMPTS", 5)
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_KEY_PREFIX", "academy:")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "academy-admin-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("CORS_MAX_AGE_SECONDS", 600)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("BACKUP_SCHEDULE_ENABLED", false)
	v.SetDefault("BACKUP_CRON", "0 2 * * *")
	v.SetDefault("BACKUP_STORAGE_DIR", "./backups")
	v.SetDefault("BACKUP_SIGNED_URL_SECRET", "dev_backup_secret")
	v.SetDefault("BACKUP_SIGNED_URL_TTL", "30m")
	v.SetDefault("BACKUP_RETENTION", "720h")
	v.SetDefault("BACKUP_WORKER_RETRIES", 3)
	v.SetDefault("RESTORE_MAX_UPLOAD_BYTES", 50*1024*1024)

	v.SetDefault("REGISTRATION_MAX_RETRIES", 3)

	v.SetDefault("LOGIN_RATE_LIMIT_RPS", 1.0)
	v.SetDefault("LOGIN_RATE_LIMIT_BURST", 5)
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
