// Package ledger records the append-only transaction history and the
// notifications produced by wallet operations.
package ledger

import (
	"context"
	"time"

	"github.com/Aidin1998/investex/internal/database"
	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	publishTimeout  = 5 * time.Second
)

// Publisher fans committed notifications out to other systems
type Publisher interface {
	Publish(ctx context.Context, n *models.Notification) error
}

// Recorder is implemented by Service
type Recorder interface {
	RecordTransaction(tx *gorm.DB, t *models.Transaction) error
	Notify(tx *gorm.DB, n *models.Notification) error
	Dispatch(ctx context.Context, notifications ...*models.Notification)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, int64, error)
	ListNotifications(ctx context.Context, reader models.Identity) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, reader models.Identity) (*models.Notification, error)
}

// Service implements Recorder
type Service struct {
	db        *gorm.DB
	publisher Publisher
	logger    *zap.Logger
	timeout   time.Duration
}

// NewService creates a recorder. publisher may be nil.
func NewService(db *gorm.DB, publisher Publisher, logger *zap.Logger, timeout time.Duration) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		logger:    logger.Named("ledger"),
		timeout:   timeout,
	}
}

// RecordTransaction appends t using the caller's transaction.
func (s *Service) RecordTransaction(tx *gorm.DB, t *models.Transaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return database.WrapError(tx.Create(t).Error)
}

// Notify appends n using the caller's transaction. It is not published
// until Dispatch is called after commit.
func (s *Service) Notify(tx *gorm.DB, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return database.WrapError(tx.Create(n).Error)
}

// Dispatch hands committed notifications to the publisher. Failures are
// logged and never surface to the caller.
func (s *Service) Dispatch(ctx context.Context, notifications ...*models.Notification) {
	if s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, n := range notifications {
		if err := s.publisher.Publish(ctx, n); err != nil {
			s.logger.Warn("Failed to publish notification",
				zap.String("notification_id", n.ID.String()),
				zap.String("category", n.Category),
				zap.Error(err))
		}
	}
}

// Page returns the limit and offset a listing actually applies: a missing
// limit becomes the default page size and large ones are capped.
func Page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListTransactions returns a user's history, newest first, with the total count.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, int64, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	limit, offset = Page(limit, offset)

	var total int64
	query := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, database.WrapError(err)
	}

	transactions := make([]models.Transaction, 0, limit)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&transactions).Error
	if err != nil {
		return nil, 0, database.WrapError(err)
	}

	return transactions, total, nil
}

// ListNotifications returns the reader's notifications, newest first.
// Readers allowed to see administrator notifications also get broadcasts.
func (s *Service) ListNotifications(ctx context.Context, reader models.Identity) ([]models.Notification, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := s.db.WithContext(ctx)
	if reader.Role.Can(models.CapViewAdminNotifications) {
		query = query.Where("recipient_id = ? OR recipient_id IS NULL", reader.UserID)
	} else {
		query = query.Where("recipient_id = ?", reader.UserID)
	}

	notifications := []models.Notification{}
	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, database.WrapError(err)
	}
	return notifications, nil
}

// MarkRead flags a notification as read. Notifications the reader cannot
// see are reported as not found.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, reader models.Identity) (*models.Notification, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, database.WrapError(err)
	}

	visible := n.RecipientID != nil && *n.RecipientID == reader.UserID
	if n.Broadcast() {
		visible = reader.Role.Can(models.CapViewAdminNotifications)
	}
	if !visible {
		return nil, errors.NotFound.Explain("notification not found")
	}

	if !n.Read {
		if err := s.db.WithContext(ctx).Model(&n).Update("read", true).Error; err != nil {
			return nil, database.WrapError(err)
		}
		n.Read = true
	}
	return &n, nil
}
