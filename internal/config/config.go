package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Storage backend names accepted in STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds the narrative service configuration, loaded from environment
// variables.
type Config struct {
	Port     string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Content
	ContentDir   string `envconfig:"CONTENT_DIR" default:"content/chapters"`
	ArcIndexPath string `envconfig:"ARC_INDEX_PATH" default:"content/story_arcs.json"`

	// Progress store
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"memory"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Narrative events (optional; events are dropped when unset)
	RabbitMQURL string `envconfig:"RABBITMQ_URL"`
	EventsQueue string `envconfig:"NARRATIVE_EVENTS_QUEUE" default:"narrative_events"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load narrative service config: %w", err)
	}
	switch cfg.StorageBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if cfg.StorageBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("STORAGE_BACKEND=postgres requires DATABASE_URL")
	}
	return &cfg, nil
}
