package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "auto", cfg.Settlement.Mode)
	assert.Equal(t, 3, cfg.Ride.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Ride.BookLockTTL)
	assert.Equal(t, 15, cfg.Dispatch.TargetLimit)
	assert.Equal(t, 0.5, cfg.Dispatch.CampaignRadiusKm)
	assert.Equal(t, "Asia/Kolkata", cfg.Pricing.Timezone)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SETTLEMENT_MODE", "best_effort")
	t.Setenv("RIDE_MAX_RETRIES", "5")
	t.Setenv("RIDE_BOOK_LOCK_TTL", "2s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "best_effort", cfg.Settlement.Mode)
	assert.Equal(t, 5, cfg.Ride.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Ride.BookLockTTL)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}
