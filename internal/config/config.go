package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "pos"

// Config is read from POS_* environment variables.
type Config struct {
	APIURL        string `envconfig:"API_URL" required:"true"`
	APIKey        string `envconfig:"API_KEY" required:"true"`
	StorageBucket string `envconfig:"STORAGE_BUCKET" default:"product-images"`

	DBPath string `envconfig:"DB_PATH" default:"pos.db"`

	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	ExpiryMargin time.Duration `envconfig:"EXPIRY_MARGIN" default:"60s"`
	RateLimit    float64       `envconfig:"RATE_LIMIT" default:"10"`
	RateBurst    int           `envconfig:"RATE_BURST" default:"20"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"pos-sales"`

	HistoryReload time.Duration `envconfig:"HISTORY_RELOAD" default:"1m"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIURL == "" || c.APIKey == "" {
		return fmt.Errorf("invalid config: API_URL and API_KEY are required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid config: HTTP_TIMEOUT must be positive")
	}
	if c.ExpiryMargin < 0 {
		return fmt.Errorf("invalid config: EXPIRY_MARGIN cannot be negative")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SetupLogging applies the configured level and the JSON formatter to the
// standard logger.
func (c *Config) SetupLogging() {
	log.SetFormatter(&log.JSONFormatter{})
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
