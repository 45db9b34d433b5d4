// Package cache provides the Redis read-through cache for catalog lookups.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aidin1998/investex/pkg/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds Redis configuration
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// TTL bounds how long a stale entry can survive a missed invalidation.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// KeyPrefix namespaces cache keys when the server is shared.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// DefaultConfig returns default Redis configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		TTL:          5 * time.Minute,
		KeyPrefix:    "investex:instrument:",
	}
}

// NewRedisClient builds a go-redis client from config without dialing.
func NewRedisClient(config *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
}

// InstrumentCache stores instrument snapshots in Redis as JSON.
type InstrumentCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewInstrumentCache wraps an existing client.
func NewInstrumentCache(rdb redis.Cmdable, config *Config, logger *zap.Logger) *InstrumentCache {
	return &InstrumentCache{
		rdb:    rdb,
		ttl:    config.TTL,
		prefix: config.KeyPrefix,
		logger: logger.Named("instrument-cache"),
	}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, config *Config, logger *zap.Logger) (*InstrumentCache, *redis.Client, error) {
	rdb := NewRedisClient(config)

	ctx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis client connected",
		zap.String("addr", config.Addr),
		zap.Int("db", config.DB),
		zap.Int("pool_size", config.PoolSize),
	)
	return NewInstrumentCache(rdb, config, logger), rdb, nil
}

func (c *InstrumentCache) key(id uuid.UUID) string {
	return c.prefix + id.String()
}

// Get returns the cached instrument, or nil on a miss.
func (c *InstrumentCache) Get(ctx context.Context, id uuid.UUID) (*models.Instrument, error) {
	data, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached instrument: %w", err)
	}

	var inst models.Instrument
	if err := json.Unmarshal(data, &inst); err != nil {
		// A corrupt entry behaves as a miss and is dropped.
		c.logger.Warn("Discarding undecodable cache entry", zap.String("instrument_id", id.String()), zap.Error(err))
		_ = c.rdb.Del(ctx, c.key(id)).Err()
		return nil, nil
	}
	return &inst, nil
}

// Set stores a snapshot of inst.
func (c *InstrumentCache) Set(ctx context.Context, inst *models.Instrument) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to encode instrument: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(inst.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache instrument: %w", err)
	}
	return nil
}

// Invalidate drops the entries for ids.
func (c *InstrumentCache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate instruments: %w", err)
	}
	return nil
}
