package config

import (
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("POS_API_URL", "https://backend.test")
	t.Setenv("POS_API_KEY", "anon-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://backend.test", cfg.APIURL)
	assert.Equal(t, "product-images", cfg.StorageBucket)
	assert.Equal(t, "pos.db", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.ExpiryMargin)
	assert.Equal(t, 10.0, cfg.RateLimit)
	assert.Equal(t, 20, cfg.RateBurst)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "pos-sales", cfg.KafkaTopic)
	assert.Equal(t, time.Minute, cfg.HistoryReload)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("POS_EXPIRY_MARGIN", "2m")
	t.Setenv("POS_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("POS_REDIS_ADDR", "localhost:6379")
	t.Setenv("POS_RATE_LIMIT", "2.5")
	t.Setenv("POS_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.ExpiryMargin)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	require.NoError(t, os.Unsetenv("POS_API_URL"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_EmptyRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("POS_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"POS_HTTP_TIMEOUT":  "0s",
		"POS_EXPIRY_MARGIN": "-1s",
		"POS_LOG_LEVEL":     "chatty",
		"POS_RATE_BURST":    "many",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSetupLogging(t *testing.T) {
	prev := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(prev) })

	cfg := &Config{LogLevel: "warn"}
	cfg.SetupLogging()
	assert.Equal(t, log.WarnLevel, log.GetLevel())
}
