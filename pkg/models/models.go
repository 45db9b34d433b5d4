package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet defaults applied on lazy creation.
const (
	DefaultMaxPositions = 100
	DefaultRiskTier     = 1
	MinRisk             = 1
	MaxRisk             = 5
)

// DefaultMaxTransactionValue is the per-purchase value cap of a new wallet.
var DefaultMaxTransactionValue = decimal.NewFromInt(100000)

// User represents a registered user
type User struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Name         string    `json:"name" gorm:"type:varchar(120);not null"`
	Email        string    `json:"email" gorm:"type:varchar(254);uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"column:password_hash;not null"`
	Role         Role      `json:"role" gorm:"type:varchar(20);default:user;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Instrument is a tradable catalog entry
type Instrument struct {
	ID        uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Name      string          `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(36,18);not null"`
	Quantity  int64           `json:"quantity" gorm:"not null"`
	Risk      int             `json:"risk" gorm:"not null;default:1"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (i *Instrument) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.Risk = NormalizeRisk(i.Risk)
	return nil
}

// AfterFind reports rows written before risk levels existed as risk 1.
func (i *Instrument) AfterFind(*gorm.DB) error {
	i.Risk = NormalizeRisk(i.Risk)
	return nil
}

// NormalizeRisk maps an unset risk level to the lowest one.
func NormalizeRisk(risk int) int {
	if risk < MinRisk {
		return MinRisk
	}
	return risk
}

// Wallet is the per-user cash balance, positions and trading limits
type Wallet struct {
	ID                  uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID              uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	Balance             decimal.Decimal `json:"balance" gorm:"type:decimal(36,18);default:0;not null"`
	MaxPositions        int             `json:"max_positions" gorm:"default:100;not null"`
	MaxTransactionValue decimal.Decimal `json:"max_transaction_value" gorm:"type:decimal(36,18);default:100000;not null"`
	RiskTier            int             `json:"risk_tier" gorm:"default:1;not null"`
	Version             int64           `json:"version" gorm:"default:1;not null"` // Optimistic concurrency control
	Positions           []Position      `json:"positions" gorm:"foreignKey:WalletID"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// NewWallet returns an empty wallet with the default limits.
func NewWallet(userID uuid.UUID) *Wallet {
	return &Wallet{
		ID:                  uuid.New(),
		UserID:              userID,
		Balance:             decimal.Zero,
		MaxPositions:        DefaultMaxPositions,
		MaxTransactionValue: DefaultMaxTransactionValue,
		RiskTier:            DefaultRiskTier,
		Version:             1,
		Positions:           []Position{},
	}
}

// Position returns the held position for instrumentID, if any.
func (w *Wallet) Position(instrumentID uuid.UUID) (*Position, bool) {
	for i := range w.Positions {
		if w.Positions[i].InstrumentID == instrumentID {
			return &w.Positions[i], true
		}
	}
	return nil, false
}

// Position is a held quantity of one instrument within a wallet
type Position struct {
	ID           uuid.UUID       `json:"-" gorm:"primaryKey;type:uuid"`
	WalletID     uuid.UUID       `json:"-" gorm:"type:uuid;uniqueIndex:idx_position_wallet_instrument;not null"`
	InstrumentID uuid.UUID       `json:"instrument_id" gorm:"type:uuid;uniqueIndex:idx_position_wallet_instrument;not null"`
	Quantity     int64           `json:"quantity" gorm:"not null"`
	Price        decimal.Decimal `json:"price" gorm:"type:decimal(36,18);not null"` // most recent purchase unit price
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (p *Position) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// DepositStatus is the state of a deposit request
type DepositStatus string

const (
	DepositPending  DepositStatus = "pending"
	DepositApproved DepositStatus = "approved"
	DepositRejected DepositStatus = "rejected"
)

// DepositRequest is a cash top-up awaiting an administrator decision
type DepositRequest struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      uuid.UUID       `json:"user_id" gorm:"type:uuid;index;not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(36,18);not null"`
	Description string          `json:"description,omitempty" gorm:"type:text"`
	Status      DepositStatus   `json:"status" gorm:"type:varchar(20);index;default:pending;not null"`
	RequestedAt time.Time       `json:"requested_at" gorm:"index"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
	ApprovedBy  *uuid.UUID      `json:"approved_by,omitempty" gorm:"type:uuid"`
	Reason      string          `json:"reason,omitempty" gorm:"type:text"`
}

func (d *DepositRequest) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// TransactionKind classifies ledger entries
type TransactionKind string

const (
	TransactionPurchase TransactionKind = "purchase"
	TransactionSale     TransactionKind = "sale"
	TransactionDeposit  TransactionKind = "deposit"
)

// Transaction is an immutable ledger entry
type Transaction struct {
	ID           uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       uuid.UUID       `json:"user_id" gorm:"type:uuid;index:idx_transaction_user_time;not null"`
	InstrumentID *uuid.UUID      `json:"instrument_id,omitempty" gorm:"type:uuid;index"`
	Kind         TransactionKind `json:"kind" gorm:"type:varchar(20);not null"`
	Quantity     int64           `json:"quantity"`
	Value        decimal.Decimal `json:"value" gorm:"type:decimal(36,18);not null"`
	UnitPrice    decimal.Decimal `json:"unit_price" gorm:"type:decimal(36,18)"`
	CreatedAt    time.Time       `json:"created_at" gorm:"index:idx_transaction_user_time"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Notification categories
const (
	CategoryDepositRequested = "deposit_requested"
	CategoryDepositApproved  = "deposit_approved"
	CategoryDepositRejected  = "deposit_rejected"
)

// Notification is a message to one user, or to all administrators when
// RecipientID is nil.
type Notification struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	RecipientID *uuid.UUID `json:"recipient_id,omitempty" gorm:"type:uuid;index"`
	Category    string     `json:"category" gorm:"type:varchar(50);not null"`
	Message     string     `json:"message" gorm:"type:text;not null"`
	Payload     string     `json:"payload,omitempty" gorm:"type:text"` // JSON document
	Read        bool       `json:"read" gorm:"default:false;not null"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// SetPayload stores v as the JSON payload.
func (n *Notification) SetPayload(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	n.Payload = string(b)
	return nil
}

// Broadcast reports whether the notification targets all administrators.
func (n *Notification) Broadcast() bool {
	return n.RecipientID == nil
}

// All returns every persisted model, in migration order.
func All() []any {
	return []any{
		&User{},
		&Instrument{},
		&Wallet{},
		&Position{},
		&DepositRequest{},
		&Transaction{},
		&Notification{},
	}
}
