package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendNeo4j  = "neo4j"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Storage
	StoreBackend string // memory, badger or neo4j
	BadgerPath   string
	LockStripes  int

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Queries
	QueryTimeout time.Duration

	// HTTP rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		StoreBackend:   getEnv("STORE_BACKEND", BackendMemory),
		BadgerPath:     getEnv("BADGER_PATH", "data/graph"),
		LockStripes:    getEnvInt("LOCK_STRIPES", 64),
		Neo4jURI:       getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:      getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:  getEnv("NEO4J_PASSWORD", "password"),
		QueryTimeout:   time.Duration(getEnvInt("QUERY_TIMEOUT_MS", 5000)) * time.Millisecond,
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 100),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required for the badger backend")
		}
	case BackendNeo4j:
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required")
		}
		if c.Neo4jUser == "" {
			return fmt.Errorf("NEO4J_USER is required")
		}
		if c.Neo4jPassword == "" {
			return fmt.Errorf("NEO4J_PASSWORD is required")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.LockStripes <= 0 {
		return fmt.Errorf("LOCK_STRIPES must be positive")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT_MS must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
