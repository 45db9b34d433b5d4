// Package deposit implements the cash deposit approval workflow.
//
// A request starts pending and is decided exactly once by an administrator.
// Approval credits the requester's wallet and records a deposit ledger entry;
// rejection only records the decision. Both notify the requester, and every
// new request notifies all administrators.
package deposit

import (
	"context"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aidin1998/investex/internal/database"
	"github.com/Aidin1998/investex/internal/ledger"
	"github.com/Aidin1998/investex/internal/wallet"
	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/Aidin1998/investex/pkg/metrics"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTextLength = 500

// DepositService defines the deposit workflow
type DepositService interface {
	Request(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*models.DepositRequest, error)
	Decide(ctx context.Context, depositID, approverID uuid.UUID, approve bool, reason string) (*models.DepositRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.DepositRequest, error)
	ListPending(ctx context.Context) ([]models.DepositRequest, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.DepositRequest, error)
}

// Service implements DepositService
type Service struct {
	db       *gorm.DB
	wallets  *wallet.Service
	recorder ledger.Recorder
	logger   *zap.Logger
	policy   *bluemonday.Policy
	currency string
	timeout  time.Duration
}

// NewService creates a new deposit service. currency is used to format
// amounts in notification messages.
func NewService(db *gorm.DB, wallets *wallet.Service, recorder ledger.Recorder, logger *zap.Logger, currency string, timeout time.Duration) *Service {
	return &Service{
		db:       db,
		wallets:  wallets,
		recorder: recorder,
		logger:   logger.Named("deposit"),
		policy:   bluemonday.StrictPolicy(),
		currency: currency,
		timeout:  timeout,
	}
}

// Request creates a pending deposit and notifies administrators.
func (s *Service) Request(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*models.DepositRequest, error) {
	if !amount.IsPositive() {
		return nil, errors.InvalidAmount.WithField("out_of_range", "amount", "must be greater than zero")
	}
	description, err := s.cleanText("description", description)
	if err != nil {
		return nil, err
	}

	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := &models.DepositRequest{
		UserID:      userID,
		Amount:      amount,
		Description: description,
		Status:      models.DepositPending,
		RequestedAt: time.Now().UTC(),
	}
	note := &models.Notification{
		Category: models.CategoryDepositRequested,
		Message:  "New deposit request of " + ledger.FormatAmount(amount, s.currency),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return database.WrapError(err)
		}
		if err := note.SetPayload(map[string]any{
			"deposit_id": req.ID,
			"user_id":    userID,
			"amount":     amount.String(),
		}); err != nil {
			return errors.Wrap(err)
		}
		return s.recorder.Notify(tx, note)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Dispatch(ctx, note)
	s.logger.Info("Deposit requested",
		zap.String("deposit_id", req.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()))
	return req, nil
}

// Decide approves or rejects a pending deposit. Only one decision can win;
// every later or concurrent one fails with AlreadyProcessed.
func (s *Service) Decide(ctx context.Context, depositID, approverID uuid.UUID, approve bool, reason string) (*models.DepositRequest, error) {
	reason, err := s.cleanText("reason", reason)
	if err != nil {
		return nil, err
	}

	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := models.DepositRejected
	if approve {
		status = models.DepositApproved
	}

	var (
		req  models.DepositRequest
		note *models.Notification
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&req, "id = ?", depositID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.DepositNotFound
			}
			return database.WrapError(err)
		}
		if req.Status != models.DepositPending {
			return alreadyProcessed(&req)
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":      status,
			"decided_at":  now,
			"approved_by": approverID,
		}
		if !approve {
			updates["reason"] = reason
		}
		res := tx.Model(&models.DepositRequest{}).
			Where("id = ? AND status = ?", depositID, models.DepositPending).
			Updates(updates)
		if res.Error != nil {
			return database.WrapError(res.Error)
		}
		if res.RowsAffected == 0 {
			return alreadyProcessed(&req)
		}

		req.Status = status
		req.DecidedAt = &now
		req.ApprovedBy = &approverID
		if !approve {
			req.Reason = reason
		}

		if approve {
			if err := s.credit(tx, &req); err != nil {
				return err
			}
		}

		note, err = s.decisionNotification(&req)
		if err != nil {
			return err
		}
		return s.recorder.Notify(tx, note)
	})
	if err != nil {
		return nil, err
	}

	metrics.DepositDecisions.WithLabelValues(string(status)).Inc()
	s.recorder.Dispatch(ctx, note)
	s.logger.Info("Deposit decided",
		zap.String("deposit_id", depositID.String()),
		zap.String("status", string(status)),
		zap.String("approver_id", approverID.String()))
	return &req, nil
}

func (s *Service) credit(tx *gorm.DB, req *models.DepositRequest) error {
	w, err := s.wallets.GetOrCreateTx(tx, req.UserID)
	if err != nil {
		return err
	}
	if err := s.wallets.Credit(tx, w.ID, req.Amount); err != nil {
		return err
	}
	return s.recorder.RecordTransaction(tx, &models.Transaction{
		UserID:    req.UserID,
		Kind:      models.TransactionDeposit,
		Value:     req.Amount,
		UnitPrice: decimal.Zero,
	})
}

func (s *Service) decisionNotification(req *models.DepositRequest) (*models.Notification, error) {
	recipient := req.UserID
	amount := ledger.FormatAmount(req.Amount, s.currency)

	note := &models.Notification{RecipientID: &recipient}
	payload := map[string]any{
		"deposit_id": req.ID,
		"amount":     req.Amount.String(),
		"status":     req.Status,
	}

	if req.Status == models.DepositApproved {
		note.Category = models.CategoryDepositApproved
		note.Message = "Your deposit of " + amount + " was approved"
	} else {
		note.Category = models.CategoryDepositRejected
		note.Message = "Your deposit of " + amount + " was rejected"
		if req.Reason != "" {
			note.Message += ": " + req.Reason
			payload["reason"] = req.Reason
		}
	}

	if err := note.SetPayload(payload); err != nil {
		return nil, errors.Wrap(err)
	}
	return note, nil
}

// Get returns one deposit request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.DepositRequest, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	var req models.DepositRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.DepositNotFound
		}
		return nil, database.WrapError(err)
	}
	return &req, nil
}

// ListPending returns undecided requests, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]models.DepositRequest, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	reqs := []models.DepositRequest{}
	err := s.db.WithContext(ctx).
		Where("status = ?", models.DepositPending).
		Order("requested_at ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, database.WrapError(err)
	}
	return reqs, nil
}

// ListForUser returns a user's requests, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.DepositRequest, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	reqs := []models.DepositRequest{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("requested_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, database.WrapError(err)
	}
	return reqs, nil
}

// cleanText strips markup and returns plain text. The policy escapes the
// characters it keeps, so the result is unescaped before it is stored.
func (s *Service) cleanText(field, text string) (string, error) {
	text = strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
	if utf8.RuneCountInString(text) > maxTextLength {
		return "", errors.ValidationFailed.WithField("too_long", field, "must be at most 500 characters")
	}
	return text, nil
}

func alreadyProcessed(req *models.DepositRequest) error {
	return errors.AlreadyProcessed.
		Explain("deposit request already %s", req.Status).
		WithDetail("status", req.Status)
}
