package deposit_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/investex/internal/deposit"
	"github.com/Aidin1998/investex/internal/ledger"
	"github.com/Aidin1998/investex/internal/wallet"
	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/Aidin1998/investex/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	deposits *deposit.Service
	wallets  *wallet.Service
	ledger   *ledger.Service
	pub      *countingPublisher
}

type countingPublisher struct {
	mu         sync.Mutex
	categories []string
}

func (p *countingPublisher) Publish(_ context.Context, n *models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.categories = append(p.categories, n.Category)
	return nil
}

func setup(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	pub := &countingPublisher{}
	log := zap.NewNop()
	wallets := wallet.NewService(db, log, time.Second)
	recorder := ledger.NewService(db, pub, log, time.Second)
	return &fixture{
		db:       db,
		deposits: deposit.NewService(db, wallets, recorder, log, "USD", time.Second),
		wallets:  wallets,
		ledger:   recorder,
		pub:      pub,
	}
}

var admin = models.Identity{UserID: uuid.New(), Role: models.RoleAdmin}

func TestRequestNotifiesAdministrators(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := uuid.New()

	req, err := f.deposits.Request(ctx, userID, decimal.NewFromInt(500), "  salary <b>June</b> ")
	require.NoError(t, err)
	assert.Equal(t, models.DepositPending, req.Status)
	assert.Equal(t, "salary June", req.Description)
	assert.Nil(t, req.DecidedAt)

	notes, err := f.ledger.ListNotifications(ctx, admin)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Broadcast())
	assert.Equal(t, models.CategoryDepositRequested, notes[0].Category)
	assert.Equal(t, "New deposit request of $500.00", notes[0].Message)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(notes[0].Payload), &payload))
	assert.Equal(t, req.ID.String(), payload["deposit_id"])
	assert.Equal(t, userID.String(), payload["user_id"])
	assert.Equal(t, "500", payload["amount"])

	// the requester does not see administrator broadcasts
	own, err := f.ledger.ListNotifications(ctx, models.Identity{UserID: userID, Role: models.RoleUser})
	require.NoError(t, err)
	assert.Empty(t, own)

	assert.Equal(t, []string{models.CategoryDepositRequested}, f.pub.categories)
}

func TestRequestValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.deposits.Request(ctx, uuid.New(), decimal.Zero, "")
	assert.True(t, errors.Is(err, errors.ValidationFailed))

	_, err = f.deposits.Request(ctx, uuid.New(), decimal.NewFromInt(-10), "")
	assert.True(t, errors.Is(err, errors.ValidationFailed))

	_, err = f.deposits.Request(ctx, uuid.New(), decimal.NewFromInt(10), strings.Repeat("x", 501))
	assert.True(t, errors.Is(err, errors.ValidationFailed))

	var count int64
	require.NoError(t, f.db.Model(&models.DepositRequest{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApproveCreditsWallet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := uuid.New()

	req, err := f.deposits.Request(ctx, userID, decimal.NewFromInt(1000), "")
	require.NoError(t, err)

	decided, err := f.deposits.Decide(ctx, req.ID, admin.UserID, true, "")
	require.NoError(t, err)
	assert.Equal(t, models.DepositApproved, decided.Status)
	require.NotNil(t, decided.DecidedAt)
	require.NotNil(t, decided.ApprovedBy)
	assert.Equal(t, admin.UserID, *decided.ApprovedBy)

	w, err := f.wallets.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(1000)), w.Balance.String())

	txs, total, err := f.ledger.ListTransactions(ctx, userID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, models.TransactionDeposit, txs[0].Kind)
	assert.True(t, txs[0].Value.Equal(decimal.NewFromInt(1000)))
	assert.Nil(t, txs[0].InstrumentID)

	notes, err := f.ledger.ListNotifications(ctx, models.Identity{UserID: userID, Role: models.RoleUser})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.CategoryDepositApproved, notes[0].Category)
	assert.Equal(t, "Your deposit of $1,000.00 was approved", notes[0].Message)

	stored, err := f.deposits.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DepositApproved, stored.Status)
}

func TestDecideTwiceIsRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := uuid.New()

	req, err := f.deposits.Request(ctx, userID, decimal.NewFromInt(100), "")
	require.NoError(t, err)
	_, err = f.deposits.Decide(ctx, req.ID, admin.UserID, true, "")
	require.NoError(t, err)

	_, err = f.deposits.Decide(ctx, req.ID, admin.UserID, true, "")
	assert.True(t, errors.Is(err, errors.AlreadyProcessed))
	_, err = f.deposits.Decide(ctx, req.ID, admin.UserID, false, "late")
	assert.True(t, errors.Is(err, errors.AlreadyProcessed))

	w, err := f.wallets.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(100)), w.Balance.String())
}

func TestReject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := uuid.New()
	reader := models.Identity{UserID: userID, Role: models.RoleUser}

	first, err := f.deposits.Request(ctx, userID, decimal.NewFromInt(50), "")
	require.NoError(t, err)
	second, err := f.deposits.Request(ctx, userID, decimal.NewFromInt(75), "")
	require.NoError(t, err)

	rejected, err := f.deposits.Decide(ctx, first.ID, admin.UserID, false, "unverified source")
	require.NoError(t, err)
	assert.Equal(t, models.DepositRejected, rejected.Status)
	assert.Equal(t, "unverified source", rejected.Reason)

	_, err = f.deposits.Decide(ctx, second.ID, admin.UserID, false, "")
	require.NoError(t, err)

	notes, err := f.ledger.ListNotifications(ctx, reader)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	messages := []string{notes[0].Message, notes[1].Message}
	assert.Contains(t, messages, "Your deposit of $50.00 was rejected: unverified source")
	assert.Contains(t, messages, "Your deposit of $75.00 was rejected")

	// rejection never creates or credits a wallet
	_, err = f.wallets.Get(ctx, userID)
	assert.True(t, errors.Is(err, errors.NotFound))

	_, total, err := f.ledger.ListTransactions(ctx, userID, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestFreeTextKeepsPunctuation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := uuid.New()
	reader := models.Identity{UserID: userID, Role: models.RoleUser}

	req, err := f.deposits.Request(ctx, userID, decimal.NewFromInt(10), `Salary & "bonus" <i>isn't</i> late`)
	require.NoError(t, err)
	assert.Equal(t, `Salary & "bonus" isn't late`, req.Description)

	stored, err := f.deposits.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, `Salary & "bonus" isn't late`, stored.Description)

	rejected, err := f.deposits.Decide(ctx, req.ID, admin.UserID, false, `Name doesn't match "account" & IBAN`)
	require.NoError(t, err)
	assert.Equal(t, `Name doesn't match "account" & IBAN`, rejected.Reason)

	notes, err := f.ledger.ListNotifications(ctx, reader)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, `Your deposit of $10.00 was rejected: Name doesn't match "account" & IBAN`, notes[0].Message)

	// the length limit counts characters as typed, not their escaped form
	_, err = f.deposits.Request(ctx, userID, decimal.NewFromInt(10), strings.Repeat("&", 500))
	assert.NoError(t, err)
	_, err = f.deposits.Request(ctx, userID, decimal.NewFromInt(10), strings.Repeat("é", 500))
	assert.NoError(t, err)
}

func TestDecideUnknownDeposit(t *testing.T) {
	f := setup(t)

	_, err := f.deposits.Decide(context.Background(), uuid.New(), admin.UserID, true, "")
	assert.True(t, errors.Is(err, errors.NotFound))

	_, err = f.deposits.Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := uuid.New()

	req, err := f.deposits.Request(ctx, userID, decimal.NewFromInt(200), "")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		processed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(approve bool) {
			defer wg.Done()
			_, err := f.deposits.Decide(ctx, req.ID, admin.UserID, approve, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, errors.AlreadyProcessed):
				processed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, processed)

	stored, err := f.deposits.Get(ctx, req.ID)
	require.NoError(t, err)
	_, total, err := f.ledger.ListTransactions(ctx, userID, 0, 0)
	require.NoError(t, err)
	if stored.Status == models.DepositApproved {
		assert.Equal(t, int64(1), total)
	} else {
		assert.Zero(t, total)
	}
}

func TestListings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	a1, err := f.deposits.Request(ctx, alice, decimal.NewFromInt(10), "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b1, err := f.deposits.Request(ctx, bob, decimal.NewFromInt(20), "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	a2, err := f.deposits.Request(ctx, alice, decimal.NewFromInt(30), "")
	require.NoError(t, err)

	_, err = f.deposits.Decide(ctx, b1.ID, admin.UserID, true, "")
	require.NoError(t, err)

	pending, err := f.deposits.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a1.ID, pending[0].ID)
	assert.Equal(t, a2.ID, pending[1].ID)

	mine, err := f.deposits.ListForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, a2.ID, mine[0].ID)
	assert.Equal(t, a1.ID, mine[1].ID)

	none, err := f.deposits.ListForUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}
