package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	Port          string
	GRPCAddr      string
	JWTSecret     string
	TokenTTL      time.Duration
	BcryptCost    int
	StoreBackend  string
	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL        string
	EventsExchange string
	LogsExchange   string
	ServiceName    string
	Environment    string

	UploadDir         string
	ReconcileInterval time.Duration
	LogLevel          string
	LogFormat         string
}

// Load reads an optional .env file and then the process environment. It reports
// whether a .env file was found so the caller can log it once a logger exists.
func Load() (*Config, bool) {
	envFile := godotenv.Load() == nil

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		GRPCAddr:          getEnv("GRPC_ADDR", ":8085"),
		JWTSecret:         getEnv("JWT_SECRET", os.Getenv("API_SECRET")),
		TokenTTL:          getEnvDuration("TOKEN_TTL", 24*time.Hour),
		BcryptCost:        getEnvInt("BCRYPT_COST", 12),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		DatabaseDSN:       os.Getenv("DB_DSN"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		AMQPURL:           os.Getenv("AMQP_URL"),
		EventsExchange:    getEnv("EVENTS_EXCHANGE", "app.events"),
		LogsExchange:      getEnv("LOGS_EXCHANGE", "logs.events"),
		ServiceName:       getEnv("SERVICE_NAME", "friend-graph-service"),
		Environment:       getEnv("ENVIRONMENT", "local"),
		UploadDir:         getEnv("UPLOAD_DIR", "./uploads"),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 30*time.Second),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}
	return cfg, envFile
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET (or API_SECRET) must be set"))
	}
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DB_DSN must be set for the postgres store"))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR must be set for the redis store"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}
