// Package catalog manages the tradable instrument catalog.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/Aidin1998/investex/internal/database"
	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNameLength = 100

// InstrumentCache is a read-through cache for single-instrument lookups.
// Get returns nil, nil on a miss.
type InstrumentCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Instrument, error)
	Set(ctx context.Context, inst *models.Instrument) error
	Invalidate(ctx context.Context, ids ...uuid.UUID) error
}

// CatalogService defines catalog operations
type CatalogService interface {
	Create(ctx context.Context, name string, price decimal.Decimal, quantity int64, risk int) (*models.Instrument, error)
	Update(ctx context.Context, id uuid.UUID, update models.InstrumentUpdate) (*models.Instrument, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Instrument, error)
	List(ctx context.Context) ([]models.Instrument, error)
}

// Service implements CatalogService
type Service struct {
	db      *gorm.DB
	cache   InstrumentCache
	logger  *zap.Logger
	timeout time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithCache enables the read-through cache.
func WithCache(c InstrumentCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// NewService creates a new catalog service
func NewService(db *gorm.DB, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:     db,
		logger: logger.Named("catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds an instrument. Risk 0 means unset and is stored as 1.
func (s *Service) Create(ctx context.Context, name string, price decimal.Decimal, quantity int64, risk int) (*models.Instrument, error) {
	inst := &models.Instrument{
		Name:     strings.TrimSpace(name),
		Price:    price,
		Quantity: quantity,
		Risk:     models.NormalizeRisk(risk),
	}
	if err := validate(inst, risk); err != nil {
		return nil, err
	}

	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Instrument{}).Where("name = ?", inst.Name).Count(&count).Error; err != nil {
			return database.WrapError(err)
		}
		if count > 0 {
			return errors.DuplicateName
		}
		return createInstrument(tx, inst)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Instrument created",
		zap.String("instrument_id", inst.ID.String()),
		zap.String("name", inst.Name),
		zap.String("price", inst.Price.String()),
		zap.Int64("quantity", inst.Quantity),
		zap.Int("risk", inst.Risk))
	return inst, nil
}

func createInstrument(tx *gorm.DB, inst *models.Instrument) error {
	err := database.WrapError(tx.Create(inst).Error)
	if errors.Is(err, errors.Conflict) {
		// the unique index caught a concurrent create of the same name
		return errors.DuplicateName.Wrap(err)
	}
	return err
}

// Update applies only the fields present in update.
func (s *Service) Update(ctx context.Context, id uuid.UUID, update models.InstrumentUpdate) (*models.Instrument, error) {
	updates, err := s.instrumentUpdates(update)
	if err != nil {
		return nil, err
	}

	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	var inst models.Instrument
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if name, ok := updates["name"]; ok {
			var count int64
			err := tx.Model(&models.Instrument{}).Where("name = ? AND id <> ?", name, id).Count(&count).Error
			if err != nil {
				return database.WrapError(err)
			}
			if count > 0 {
				return errors.DuplicateName
			}
		}

		if len(updates) > 0 {
			res := tx.Model(&models.Instrument{}).Where("id = ?", id).Updates(updates)
			if err := database.WrapError(res.Error); err != nil {
				if errors.Is(err, errors.Conflict) {
					return errors.DuplicateName.Wrap(err)
				}
				return err
			}
			if res.RowsAffected == 0 {
				return errors.InstrumentNotFound
			}
		}

		if err := tx.First(&inst, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.InstrumentNotFound
			}
			return database.WrapError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, id)
	s.logger.Info("Instrument updated", zap.String("instrument_id", id.String()), zap.Int("fields", len(updates)))
	return &inst, nil
}

func (s *Service) instrumentUpdates(update models.InstrumentUpdate) (map[string]any, error) {
	updates := make(map[string]any, 4)
	invalid := errors.ValidationFailed.Explain("invalid instrument")
	failed := false

	if update.Name.Set {
		v, ok := update.Name.Get()
		v = strings.TrimSpace(v)
		if !ok || v == "" || len(v) > maxNameLength {
			invalid = invalid.WithField("invalid", "name", "must be between 1 and 100 characters")
			failed = true
		} else {
			updates["name"] = v
		}
	}
	if update.Price.Set {
		v, ok := update.Price.Get()
		if !ok || v.IsNegative() {
			invalid = invalid.WithField("out_of_range", "price", "must not be negative")
			failed = true
		} else {
			updates["price"] = v
		}
	}
	if update.Quantity.Set {
		v, ok := update.Quantity.Get()
		if !ok || v < 0 {
			invalid = invalid.WithField("out_of_range", "quantity", "must not be negative")
			failed = true
		} else {
			updates["quantity"] = v
		}
	}
	if update.Risk.Set {
		v, ok := update.Risk.Get()
		if !ok || v < models.MinRisk || v > models.MaxRisk {
			invalid = invalid.WithField("out_of_range", "risk", "must be between 1 and 5")
			failed = true
		} else {
			updates["risk"] = v
		}
	}

	if failed {
		return nil, invalid
	}
	return updates, nil
}

// Get returns one instrument, consulting the cache first when configured.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Instrument, error) {
	if s.cache != nil {
		inst, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn("Instrument cache read failed", zap.String("instrument_id", id.String()), zap.Error(err))
		} else if inst != nil {
			return inst, nil
		}
	}

	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	inst, err := s.GetTx(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, inst); err != nil {
			s.logger.Warn("Instrument cache write failed", zap.String("instrument_id", id.String()), zap.Error(err))
		}
	}
	return inst, nil
}

// GetTx reads one instrument inside tx, bypassing the cache.
func (s *Service) GetTx(tx *gorm.DB, id uuid.UUID) (*models.Instrument, error) {
	var inst models.Instrument
	if err := tx.First(&inst, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.InstrumentNotFound
		}
		return nil, database.WrapError(err)
	}
	return &inst, nil
}

// List returns every instrument ordered by name.
func (s *Service) List(ctx context.Context) ([]models.Instrument, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	instruments := []models.Instrument{}
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&instruments).Error; err != nil {
		return nil, database.WrapError(err)
	}
	return instruments, nil
}

// Invalidate drops cached entries. Cache failures are logged only; the
// entries still expire by TTL.
func (s *Service) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), ids...); err != nil {
		s.logger.Warn("Instrument cache invalidation failed", zap.Error(err))
	}
}

func validate(inst *models.Instrument, risk int) error {
	invalid := errors.ValidationFailed.Explain("invalid instrument")
	failed := false

	if inst.Name == "" || len(inst.Name) > maxNameLength {
		invalid = invalid.WithField("invalid", "name", "must be between 1 and 100 characters")
		failed = true
	}
	if inst.Price.IsNegative() {
		invalid = invalid.WithField("out_of_range", "price", "must not be negative")
		failed = true
	}
	if inst.Quantity < 0 {
		invalid = invalid.WithField("out_of_range", "quantity", "must not be negative")
		failed = true
	}
	if risk < 0 || risk > models.MaxRisk {
		invalid = invalid.WithField("out_of_range", "risk", "must be between 1 and 5")
		failed = true
	}

	if failed {
		return invalid
	}
	return nil
}
