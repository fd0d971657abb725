package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Shift      ShiftConfig
	JobCards   JobCardConfig
	Attendance AttendanceConfig
	Scoring    ScoringConfig
	Lock       LockConfig
	Reports    ReportsConfig
	Storage    StorageConfig
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

	ConnectAttempts int
	ConnectBackoff  time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	SingleSession     bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ShiftConfig describes the standard working window used to split overtime.
// Start and End are wall-clock times in HH:MM evaluated in Timezone.
type ShiftConfig struct {
	Start    string
	End      string
	Timezone string
}

// Location resolves the configured timezone, defaulting to UTC.
func (s ShiftConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// JobCardConfig toggles optional job-card workflow policies.
type JobCardConfig struct {
	GeoTimeout       time.Duration
	RequireActiveDay bool
	SingleActive     bool
}

// AttendanceConfig tunes day closure behaviour.
type AttendanceConfig struct {
	BlockOpenJobs bool
}

// ScoringConfig controls automatic scoring after approval.
type ScoringConfig struct {
	AutoAssign bool
	Workers    int
	Retries    int
}

// LockConfig selects the per-record lock backend.
type LockConfig struct {
	Backend string
	TTL     time.Duration
}

// ReportsConfig governs report caching.
type ReportsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// StorageConfig locates uploaded evidence images and signs their download links.
type StorageConfig struct {
	Dir           string
	LinkTTL       time.Duration
	SigningSecret string
	MaxImageBytes int64
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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

		ConnectAttempts: v.GetInt("DB_CONNECT_ATTEMPTS"),
		ConnectBackoff:  parseDuration(v.GetString("DB_CONNECT_BACKOFF"), 2*time.Second),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		SingleSession:     v.GetBool("JWT_SINGLE_SESSION"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Shift = ShiftConfig{
		Start:    v.GetString("SHIFT_START"),
		End:      v.GetString("SHIFT_END"),
		Timezone: v.GetString("TIMEZONE"),
	}

	cfg.JobCards = JobCardConfig{
		GeoTimeout:       parseDuration(v.GetString("GEO_TIMEOUT"), 3*time.Second),
		RequireActiveDay: v.GetBool("JOBCARDS_REQUIRE_ACTIVE_DAY"),
		SingleActive:     v.GetBool("JOBCARDS_SINGLE_ACTIVE"),
	}

	cfg.Attendance = AttendanceConfig{
		BlockOpenJobs: v.GetBool("ATTENDANCE_BLOCK_OPEN_JOBS"),
	}

	cfg.Scoring = ScoringConfig{
		AutoAssign: v.GetBool("SCORING_AUTO_ASSIGN"),
		Workers:    v.GetInt("SCORING_WORKERS"),
		Retries:    v.GetInt("SCORING_RETRIES"),
	}

	cfg.Lock = LockConfig{
		Backend: strings.ToLower(v.GetString("LOCK_BACKEND")),
		TTL:     parseDuration(v.GetString("LOCK_TTL"), 10*time.Second),
	}
	if cfg.Lock.Backend != LockBackendRedis {
		cfg.Lock.Backend = LockBackendMemory
	}

	cfg.Reports = ReportsConfig{
		CacheEnabled: v.GetBool("ENABLE_REPORT_CACHE"),
		CacheTTL:     parseDuration(v.GetString("REPORT_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Storage = StorageConfig{
		Dir:           v.GetString("UPLOAD_DIR"),
		LinkTTL:       parseDuration(v.GetString("FILE_LINK_TTL"), 15*time.Minute),
		SigningSecret: v.GetString("FILE_SIGNING_SECRET"),
		MaxImageBytes: v.GetInt64("MAX_IMAGE_BYTES"),
	}
	if cfg.Storage.SigningSecret == "" {
		cfg.Storage.SigningSecret = cfg.JWT.Secret
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
	v.SetDefault("DB_NAME", "fieldservice")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONNECT_ATTEMPTS", 5)
	v.SetDefault("DB_CONNECT_BACKOFF", "2s")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "fieldservice-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_SINGLE_SESSION", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SHIFT_START", "08:30")
	v.SetDefault("SHIFT_END", "17:30")
	v.SetDefault("TIMEZONE", "UTC")

	v.SetDefault("GEO_TIMEOUT", "3s")
	v.SetDefault("JOBCARDS_REQUIRE_ACTIVE_DAY", false)
	v.SetDefault("JOBCARDS_SINGLE_ACTIVE", false)
	v.SetDefault("ATTENDANCE_BLOCK_OPEN_JOBS", true)

	v.SetDefault("SCORING_AUTO_ASSIGN", false)
	v.SetDefault("SCORING_WORKERS", 1)
	v.SetDefault("SCORING_RETRIES", 3)

	v.SetDefault("LOCK_BACKEND", LockBackendMemory)
	v.SetDefault("LOCK_TTL", "10s")

	v.SetDefault("ENABLE_REPORT_CACHE", false)
	v.SetDefault("REPORT_CACHE_TTL", "5m")

	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("FILE_LINK_TTL", "15m")
	v.SetDefault("FILE_SIGNING_SECRET", "")
	v.SetDefault("MAX_IMAGE_BYTES", 5<<20)
}

// viper reports a missing explicit config file as a path error rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
