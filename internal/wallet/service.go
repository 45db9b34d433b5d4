// Package wallet stores per-user wallets and administers their trading limits.
package wallet

import (
	"context"
	"time"

	"github.com/Aidin1998/investex/internal/database"
	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletService defines wallet lookups and limit administration
type WalletService interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	SetLimits(ctx context.Context, userID uuid.UUID, update models.LimitsUpdate) (*models.Wallet, error)
}

// Service implements WalletService
type Service struct {
	db      *gorm.DB
	logger  *zap.Logger
	timeout time.Duration
}

// NewService creates a new wallet service
func NewService(db *gorm.DB, logger *zap.Logger, timeout time.Duration) *Service {
	return &Service{
		db:      db,
		logger:  logger.Named("wallet"),
		timeout: timeout,
	}
}

// GetOrCreate returns the user's wallet, creating it with default limits on
// first access.
func (s *Service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.GetOrCreateTx(s.db.WithContext(ctx), userID)
}

// GetOrCreateTx is GetOrCreate within the caller's transaction. Concurrent
// first accesses race on the unique user_id index and all but one insert
// become no-ops.
func (s *Service) GetOrCreateTx(tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Omit(clause.Associations).Create(models.NewWallet(userID)).Error
	if err != nil {
		return nil, database.WrapError(err)
	}

	return s.load(tx, userID)
}

// Get returns the user's wallet with its positions.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	w, err := s.load(s.db.WithContext(ctx), userID)
	if errors.Is(err, errors.NotFound) {
		return nil, errors.WalletNotFound
	}
	return w, err
}

// LoadTx reads the wallet with positions inside tx.
func (s *Service) LoadTx(tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	return s.load(tx, userID)
}

func (s *Service) load(tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Preload("Positions", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		return nil, database.WrapError(err)
	}
	if w.Positions == nil {
		w.Positions = []models.Position{}
	}
	return &w, nil
}

// SetLimits applies the provided limit fields. Every provided field is
// validated and all failures are reported together.
func (s *Service) SetLimits(ctx context.Context, userID uuid.UUID, update models.LimitsUpdate) (*models.Wallet, error) {
	if update.Empty() {
		return nil, errors.NoFieldsProvided
	}

	updates, err := limitUpdates(update)
	if err != nil {
		return nil, err
	}

	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	updates["version"] = gorm.Expr("version + 1")
	res := s.db.WithContext(ctx).Model(&models.Wallet{}).Where("user_id = ?", userID).Updates(updates)
	if res.Error != nil {
		return nil, database.WrapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errors.WalletNotFound
	}

	s.logger.Info("Wallet limits updated", zap.String("user_id", userID.String()), zap.Int("fields", len(updates)-1))
	return s.load(s.db.WithContext(ctx), userID)
}

func limitUpdates(update models.LimitsUpdate) (map[string]any, error) {
	updates := make(map[string]any, 4)
	invalid := errors.ValidationFailed.Explain("invalid wallet limits")
	failed := false

	if update.RiskTier.Set {
		v, ok := update.RiskTier.Get()
		if !ok || v < models.MinRisk || v > models.MaxRisk {
			invalid = invalid.WithField("out_of_range", "risk_tier", "must be between 1 and 5")
			failed = true
		} else {
			updates["risk_tier"] = v
		}
	}
	if update.MaxPositions.Set {
		v, ok := update.MaxPositions.Get()
		if !ok || v < 1 {
			invalid = invalid.WithField("out_of_range", "max_positions", "must be at least 1")
			failed = true
		} else {
			updates["max_positions"] = v
		}
	}
	if update.MaxTransactionValue.Set {
		v, ok := update.MaxTransactionValue.Get()
		if !ok || v.IsNegative() {
			invalid = invalid.WithField("out_of_range", "max_transaction_value", "must not be negative")
			failed = true
		} else {
			updates["max_transaction_value"] = v
		}
	}

	if failed {
		return nil, invalid
	}
	return updates, nil
}

// Credit adds amount to the wallet balance within the caller's transaction.
func (s *Service) Credit(tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.InvalidAmount
	}

	res := tx.Model(&models.Wallet{}).Where("id = ?", walletID).Updates(map[string]any{
		"balance": gorm.Expr("balance + ?", amount),
		"version": gorm.Expr("version + 1"),
	})
	if res.Error != nil {
		return database.WrapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.WalletNotFound
	}
	return nil
}
