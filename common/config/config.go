package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Provider ProviderConfig
	Features FeatureFlags
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis settings for the event relay
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	EventStream string
	MaxLen      int64
}

// EngineConfig holds workflow execution limits
type EngineConfig struct {
	MaxNodes         int
	EdgeFactor       int
	MaxLoopIters     int
	TokenBudget      int
	NodeTimeout      time.Duration
	ExecutionTimeout time.Duration
	ToolTimeout      time.Duration
	WorkerPoolSize   int
	DebugLogCap      int
}

// ProviderConfig holds model provider settings
type ProviderConfig struct {
	APIKey         string
	BaseURL        string
	DefaultModel   string
	RequestTimeout time.Duration
}

// FeatureFlags for optional subsystems
type FeatureFlags struct {
	EnableRelay      bool
	EnablePersist    bool
	EnablePrometheus bool
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "conductor"),
			User:        getEnv("POSTGRES_USER", "conductor"),
			Password:    getEnv("POSTGRES_PASSWORD", "conductor"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			EventStream: getEnv("REDIS_EVENT_STREAM", "workflow:events"),
			MaxLen:      int64(getEnvInt("REDIS_EVENT_STREAM_MAXLEN", 10000)),
		},
		Engine: EngineConfig{
			MaxNodes:         getEnvInt("ENGINE_MAX_NODES", 500),
			EdgeFactor:       getEnvInt("ENGINE_EDGE_FACTOR", 4),
			MaxLoopIters:     getEnvInt("ENGINE_MAX_LOOP_ITERATIONS", 1000),
			TokenBudget:      getEnvInt("ENGINE_TOKEN_BUDGET", 100000),
			NodeTimeout:      getEnvDuration("ENGINE_NODE_TIMEOUT", 60*time.Second),
			ExecutionTimeout: getEnvDuration("ENGINE_EXECUTION_TIMEOUT", 120*time.Second),
			ToolTimeout:      getEnvDuration("ENGINE_TOOL_TIMEOUT", 30*time.Second),
			WorkerPoolSize:   getEnvInt("ENGINE_WORKER_POOL_SIZE", runtime.NumCPU()*4),
			DebugLogCap:      getEnvInt("ENGINE_DEBUG_LOG_CAP", 200),
		},
		Provider: ProviderConfig{
			APIKey:         getEnv("MODEL_API_KEY", ""),
			BaseURL:        getEnv("MODEL_BASE_URL", ""),
			DefaultModel:   getEnv("MODEL_DEFAULT", "gpt-4o-mini"),
			RequestTimeout: getEnvDuration("MODEL_REQUEST_TIMEOUT", 60*time.Second),
		},
		Features: FeatureFlags{
			EnableRelay:      getEnvBool("ENABLE_EVENT_RELAY", false),
			EnablePersist:    getEnvBool("ENABLE_PERSISTENCE", true),
			EnablePrometheus: getEnvBool("ENABLE_PROMETHEUS", true),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Engine.MaxNodes < 1 {
		return fmt.Errorf("engine max_nodes must be positive")
	}

	if c.Engine.WorkerPoolSize < 1 {
		return fmt.Errorf("engine worker_pool_size must be positive")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
