package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// unreachable points at a closed local port so every command fails fast.
func unreachable() *Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.MaxRetries = -1
	cfg.DialTimeout = 50 * time.Millisecond
	return cfg
}

func TestConnectFailsWithoutServer(t *testing.T) {
	_, _, err := Connect(context.Background(), unreachable(), zap.NewNop())
	assert.Error(t, err)
}

func TestInstrumentCacheSurfacesErrors(t *testing.T) {
	cfg := unreachable()
	rdb := NewRedisClient(cfg)
	defer rdb.Close()
	c := NewInstrumentCache(rdb, cfg, zap.NewNop())

	inst, err := c.Get(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Nil(t, inst)

	assert.Error(t, c.Invalidate(context.Background(), uuid.New()))
	assert.NoError(t, c.Invalidate(context.Background()))
}

func TestKeyUsesPrefix(t *testing.T) {
	cfg := DefaultConfig()
	rdb := NewRedisClient(cfg)
	defer rdb.Close()
	c := NewInstrumentCache(rdb, cfg, zap.NewNop())

	id := uuid.MustParse("7f1d7d6e-4a4e-4bde-9f76-5f6f0e8a1c11")
	require.Equal(t, "investex:instrument:7f1d7d6e-4a4e-4bde-9f76-5f6f0e8a1c11", c.key(id))
}
