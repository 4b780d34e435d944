package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// JWTConfig holds JWT and refresh-token configuration
type JWTConfig struct {
	SigningKey      string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// CacheConfig holds user-lookup cache configuration.
// Backend is "memory" (in-process LRU) or "redis" (shared).
type CacheConfig struct {
	Backend  string
	Size     int
	TTL      time.Duration
	RedisURL string
}

// StorageConfig holds object storage (S3 / MinIO) configuration
type StorageConfig struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// RateLimitConfig holds login rate limiting configuration
type RateLimitConfig struct {
	LoginPerMinute int
	LoginBurst     int
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	Concurrency    int
	QueueSize      int
	VoiceRetention time.Duration
}

// Config holds all configuration
type Config struct {
	ServiceName string
	DB          DBConfig
	Server      ServerConfig
	JWT         JWTConfig
	Log         LogConfig
	Cache       CacheConfig
	Storage     StorageConfig
	RateLimit   RateLimitConfig
	Worker      WorkerConfig
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		ServiceName: serviceName,
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", serviceName),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "defaultsecretkey"),
			AccessTokenTTL:  getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", 30*time.Minute),
			RefreshTokenTTL: getEnvAsDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Cache: CacheConfig{
			Backend:  getEnv("USER_CACHE_BACKEND", "memory"),
			Size:     getEnvAsInt("USER_CACHE_SIZE", 1024),
			TTL:      getEnvAsDuration("USER_CACHE_TTL", 60*time.Second),
			RedisURL: getEnv("USER_CACHE_REDIS_URL", "redis://localhost:6379/0"),
		},
		Storage: StorageConfig{
			Endpoint:     getEnv("STORAGE_ENDPOINT", ""),
			Region:       getEnv("STORAGE_REGION", "us-east-1"),
			Bucket:       getEnv("STORAGE_BUCKET", "eterna-home"),
			AccessKey:    getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:    getEnv("STORAGE_SECRET_KEY", ""),
			UsePathStyle: getEnvAsBool("STORAGE_USE_PATH_STYLE", true),
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute: getEnvAsInt("LOGIN_RATE_PER_MINUTE", 5),
			LoginBurst:     getEnvAsInt("LOGIN_RATE_BURST", 5),
		},
		Worker: WorkerConfig{
			Concurrency:    getEnvAsInt("WORKER_CONCURRENCY", 2),
			QueueSize:      getEnvAsInt("WORKER_QUEUE_SIZE", 64),
			VoiceRetention: getEnvAsDuration("VOICE_COMMAND_RETENTION", 30*24*time.Hour),
		},
	}

	return config, nil
}

// LogFields returns the configuration as zap fields for the startup log line
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.String("cache_backend", c.Cache.Backend),
		zap.String("storage_bucket", c.Storage.Bucket),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as booleans
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
