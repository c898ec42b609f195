package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Ledger + auction store (Postgres)
	DatabaseURL string

	// Group state store (MongoDB)
	MongoURI      string
	MongoDatabase string

	// Participant graph store (Neo4j)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Realtime notification sink (NATS)
	NatsURL string

	// Auction settings
	AuctionInterval   time.Duration // time between settlements of consecutive months
	ClockPollInterval time.Duration // how often the auction clock scans for due groups

	// Metrics endpoint (empty disables the listener)
	MetricsAddr string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from the environment, with an optional .env file
func load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	config := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: os.Getenv("MONGODB_DATABASE"),
		Neo4jURI:      os.Getenv("NEO4J_URI"),
		Neo4jUser:     os.Getenv("NEO4J_USER"),
		Neo4jPassword: os.Getenv("NEO4J_PASSWORD"),
		NatsURL:       os.Getenv("NATS_URL"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		Environment:   os.Getenv("ENVIRONMENT"),

		// Defaults
		AuctionInterval:   30 * 24 * time.Hour,
		ClockPollInterval: time.Minute,
	}

	if config.MongoDatabase == "" {
		config.MongoDatabase = "chitfund"
	}

	if days := os.Getenv("AUCTION_INTERVAL_DAYS"); days != "" {
		if parsed, err := strconv.Atoi(days); err == nil && parsed > 0 {
			config.AuctionInterval = time.Duration(parsed) * 24 * time.Hour
		}
	}
	if interval := os.Getenv("CLOCK_POLL_INTERVAL"); interval != "" {
		if parsed, err := time.ParseDuration(interval); err == nil && parsed > 0 {
			config.ClockPollInterval = parsed
		}
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.MongoURI == "" {
			return nil, fmt.Errorf("MONGODB_URI is required")
		}
		if config.Neo4jURI == "" {
			return nil, fmt.Errorf("NEO4J_URI is required")
		}
	}

	return config, nil
}
