package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Purchase.RetryAttempts)
	assert.Equal(t, "investex.notifications", cfg.Kafka.NotificationTopic)
	assert.Equal(t, 5*time.Second, cfg.Database.StoreTimeout)
	assert.Equal(t, 24, cfg.JWT.ExpirationHours)
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", "file::memory:")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("PURCHASE_RETRY_ATTEMPTS", "5")
	t.Setenv("JWT_EXPIRATION_HOURS", "1")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Purchase.RetryAttempts)
	assert.Equal(t, 1, cfg.JWT.ExpirationHours)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Purchase.RetryAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.JWT.Secret = ""
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}
