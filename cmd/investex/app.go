package main

import (
	"fmt"
	"os"

	"github.com/Aidin1998/investex/internal/config"
	"github.com/Aidin1998/investex/internal/database"
	"github.com/Aidin1998/investex/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds what every command needs: configuration, a logger and the store.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

func bootstrap() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		zapLogger.Error("Failed to connect to store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
		return nil, err
	}

	return &app{cfg: cfg, logger: zapLogger, db: db}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
