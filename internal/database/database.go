// Package database opens the gorm store, migrates the schema and translates
// driver errors into the shared error taxonomy.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/investex/internal/config"
	"github.com/Aidin1998/investex/pkg/metrics"
	"github.com/Aidin1998/investex/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open connects to the configured store.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresDB(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
	case "sqlite":
		return NewSQLiteDB(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate creates or updates every table and index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks that the store answers within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return WrapError(err)
	}
	return WrapError(sqlDB.PingContext(ctx))
}

// WithTimeout bounds ctx by the configured store timeout when one is set.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// CollectStats publishes pool statistics every interval until ctx is done.
func CollectStats(ctx context.Context, db *gorm.DB, name string, interval time.Duration, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Warn("Pool statistics unavailable", zap.Error(err))
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		metrics.ObserveDBStats(name, sqlDB.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
