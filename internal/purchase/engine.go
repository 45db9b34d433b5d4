// Package purchase executes instrument purchases against a user's wallet.
//
// A purchase runs its checks in a fixed order so callers get the most
// specific error first: instrument existence and stock, wallet balance, risk
// tier, position count and finally the per-transaction value cap. The effect
// is applied in one store transaction with conditional updates; when a
// concurrent purchase wins a guard the whole sequence is retried.
package purchase

import (
	"context"
	"time"

	"github.com/Aidin1998/investex/internal/catalog"
	"github.com/Aidin1998/investex/internal/database"
	"github.com/Aidin1998/investex/internal/wallet"
	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/Aidin1998/investex/pkg/metrics"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultAttempts = 3

// Recorder appends ledger entries inside the purchase transaction
type Recorder interface {
	RecordTransaction(tx *gorm.DB, t *models.Transaction) error
}

// Engine implements purchases
type Engine struct {
	db       *gorm.DB
	catalog  *catalog.Service
	wallets  *wallet.Service
	recorder Recorder
	logger   *zap.Logger
	tracer   trace.Tracer
	timeout  time.Duration
	attempts int
}

// Option configures an Engine
type Option func(*Engine)

// WithAttempts sets how many times a purchase runs before a write conflict
// is returned to the caller.
func WithAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.attempts = n
		}
	}
}

// WithTimeout bounds each attempt's store transaction.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine creates a purchase engine
func NewEngine(db *gorm.DB, catalog *catalog.Service, wallets *wallet.Service, recorder Recorder, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		catalog:  catalog,
		wallets:  wallets,
		recorder: recorder,
		logger:   logger.Named("purchase"),
		tracer:   otel.Tracer("github.com/Aidin1998/investex/internal/purchase"),
		attempts: DefaultAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Purchase buys quantity units of an instrument for userID and returns the
// updated wallet.
func (e *Engine) Purchase(ctx context.Context, userID, instrumentID uuid.UUID, quantity int64) (*models.Wallet, error) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "purchase", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.String("instrument.id", instrumentID.String()),
		attribute.Int64("quantity", quantity),
	))
	defer span.End()

	w, err := e.purchase(ctx, userID, instrumentID, quantity)

	outcome := "success"
	if err != nil {
		outcome = errors.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	metrics.ObservePurchase(outcome, started)

	if err != nil {
		e.logger.Info("Purchase rejected",
			zap.String("user_id", userID.String()),
			zap.String("instrument_id", instrumentID.String()),
			zap.Int64("quantity", quantity),
			zap.String("reason", outcome))
		return nil, err
	}

	e.catalog.Invalidate(ctx, instrumentID)
	e.logger.Info("Purchase completed",
		zap.String("user_id", userID.String()),
		zap.String("instrument_id", instrumentID.String()),
		zap.Int64("quantity", quantity),
		zap.String("balance", w.Balance.String()))
	return w, nil
}

func (e *Engine) purchase(ctx context.Context, userID, instrumentID uuid.UUID, quantity int64) (*models.Wallet, error) {
	if quantity <= 0 {
		return nil, errors.ValidationFailed.
			Explain("quantity must be a positive integer").
			WithField("out_of_range", "quantity", "must be greater than zero")
	}

	var (
		w   *models.Wallet
		err error
	)
	for attempt := 1; attempt <= e.attempts; attempt++ {
		w, err = e.attempt(ctx, userID, instrumentID, quantity)
		if !errors.Is(err, errors.Conflict) || attempt == e.attempts {
			break
		}
		metrics.PurchaseRetries.Inc()
		e.logger.Debug("Retrying purchase after write conflict",
			zap.String("user_id", userID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return w, err
}

func (e *Engine) attempt(ctx context.Context, userID, instrumentID uuid.UUID, quantity int64) (*models.Wallet, error) {
	ctx, cancel := database.WithTimeout(ctx, e.timeout)
	defer cancel()

	var result *models.Wallet
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, err := e.catalog.GetTx(tx, instrumentID)
		if err != nil {
			return err
		}
		if inst.Quantity < quantity {
			return errors.InsufficientQuantity.
				WithDetail("requested", quantity).
				WithDetail("available", inst.Quantity)
		}

		w, err := e.wallets.GetOrCreateTx(tx, userID)
		if err != nil {
			return err
		}

		total := inst.Price.Mul(decimal.NewFromInt(quantity))
		pos, held := w.Position(instrumentID)
		if err := checkLimits(inst, w, total, held); err != nil {
			return err
		}

		if err := applyPurchase(tx, inst, w, pos, quantity, total); err != nil {
			return err
		}

		instID := inst.ID
		err = e.recorder.RecordTransaction(tx, &models.Transaction{
			UserID:       userID,
			InstrumentID: &instID,
			Kind:         models.TransactionPurchase,
			Quantity:     quantity,
			Value:        total,
			UnitPrice:    inst.Price,
		})
		if err != nil {
			return err
		}

		result, err = e.wallets.LoadTx(tx, userID)
		return err
	})
	if err != nil {
		return nil, database.WrapError(err)
	}
	return result, nil
}

// checkLimits applies the financial checks in order. Limits are inclusive;
// balance only needs to cover the total.
func checkLimits(inst *models.Instrument, w *models.Wallet, total decimal.Decimal, held bool) error {
	if w.Balance.LessThan(total) {
		return errors.InsufficientBalance.
			WithDetail("required", total.String()).
			WithDetail("available", w.Balance.String())
	}
	if inst.Risk > w.RiskTier {
		return errors.RiskTierExceeded.
			Explain("instrument risk %d exceeds wallet risk tier %d", inst.Risk, w.RiskTier).
			WithDetail("instrument_risk", inst.Risk).
			WithDetail("wallet_risk_tier", w.RiskTier)
	}
	if !held && len(w.Positions)+1 > w.MaxPositions {
		return errors.PositionLimitExceeded.
			WithDetail("max_positions", w.MaxPositions).
			WithDetail("current_positions", len(w.Positions))
	}
	if total.GreaterThan(w.MaxTransactionValue) {
		return errors.TransactionValueLimitExceeded.
			WithDetail("total_value", total.String()).
			WithDetail("max_transaction_value", w.MaxTransactionValue.String())
	}
	return nil
}

// applyPurchase moves stock and cash with guarded updates. A guard that
// matches no row means another writer changed the row since it was read.
func applyPurchase(tx *gorm.DB, inst *models.Instrument, w *models.Wallet, pos *models.Position, quantity int64, total decimal.Decimal) error {
	res := tx.Model(&models.Instrument{}).
		Where("id = ? AND quantity >= ?", inst.ID, quantity).
		Update("quantity", gorm.Expr("quantity - ?", quantity))
	if res.Error != nil {
		return database.WrapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.Conflict.Explain("instrument stock changed concurrently")
	}

	res = tx.Model(&models.Wallet{}).
		Where("id = ? AND version = ? AND balance >= ?", w.ID, w.Version, total).
		Updates(map[string]any{
			"balance": gorm.Expr("balance - ?", total),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return database.WrapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.Conflict.Explain("wallet changed concurrently")
	}

	if pos != nil {
		res = tx.Model(&models.Position{}).
			Where("id = ?", pos.ID).
			Updates(map[string]any{
				"quantity": gorm.Expr("quantity + ?", quantity),
				"price":    inst.Price,
			})
		if res.Error != nil {
			return database.WrapError(res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.Conflict.Explain("position changed concurrently")
		}
		return nil
	}

	return database.WrapError(tx.Create(&models.Position{
		WalletID:     w.ID,
		InstrumentID: inst.ID,
		Quantity:     quantity,
		Price:        inst.Price,
	}).Error)
}
