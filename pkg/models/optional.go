package models

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Optional is one member of a partial update. Set is false when the field
// was absent; Null is true when it was present as an explicit JSON null.
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Get returns the value and whether a non-null value was provided.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Set && !o.Null
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// InstrumentUpdate is the field update set for an instrument.
type InstrumentUpdate struct {
	Name     Optional[string]          `json:"name"`
	Price    Optional[decimal.Decimal] `json:"price"`
	Quantity Optional[int64]           `json:"quantity"`
	Risk     Optional[int]             `json:"risk"`
}

// Empty reports whether no field was provided.
func (u InstrumentUpdate) Empty() bool {
	return !u.Name.Set && !u.Price.Set && !u.Quantity.Set && !u.Risk.Set
}

// LimitsUpdate is the field update set for a wallet's trading limits.
type LimitsUpdate struct {
	RiskTier            Optional[int]             `json:"risk_tier"`
	MaxPositions        Optional[int]             `json:"max_positions"`
	MaxTransactionValue Optional[decimal.Decimal] `json:"max_transaction_value"`
}

// Empty reports whether no field was provided.
func (u LimitsUpdate) Empty() bool {
	return !u.RiskTier.Set && !u.MaxPositions.Set && !u.MaxTransactionValue.Set
}
