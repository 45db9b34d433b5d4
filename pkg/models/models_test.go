package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentUpdateDistinguishesAbsentAndNull(t *testing.T) {
	var u InstrumentUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"price":"12.5","risk":null}`), &u))

	assert.False(t, u.Name.Set)
	assert.False(t, u.Quantity.Set)

	price, ok := u.Price.Get()
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("12.5")))

	assert.True(t, u.Risk.Set)
	assert.True(t, u.Risk.Null)
	_, ok = u.Risk.Get()
	assert.False(t, ok)
	assert.False(t, u.Empty())

	var empty InstrumentUpdate
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.True(t, empty.Empty())
}

func TestLimitsUpdate(t *testing.T) {
	var u LimitsUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"risk_tier":3,"max_transaction_value":250}`), &u))
	tier, ok := u.RiskTier.Get()
	assert.True(t, ok)
	assert.Equal(t, 3, tier)
	assert.False(t, u.MaxPositions.Set)
	assert.True(t, u.MaxTransactionValue.Value.Equal(decimal.NewFromInt(250)))

	raw, err := json.Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk_tier":3,"max_positions":null,"max_transaction_value":"250"}`, string(raw))

	assert.Error(t, json.Unmarshal([]byte(`{"risk_tier":"high"}`), &u))
}

func TestRoleCapabilities(t *testing.T) {
	for _, c := range []Capability{CapManageCatalog, CapDecideDeposits, CapSetLimits, CapViewAdminNotifications} {
		assert.True(t, RoleAdmin.Can(c), c.String())
		assert.False(t, RoleUser.Can(c), c.String())
	}
	assert.True(t, RoleBot.Can(CapManageCatalog))
	assert.False(t, RoleBot.Can(CapDecideDeposits))
	assert.False(t, Role("root").Can(CapManageCatalog))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("bot")
	require.NoError(t, err)
	assert.Equal(t, RoleBot, r)

	_, err = ParseRole("Admin")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestNormalizeRisk(t *testing.T) {
	assert.Equal(t, DefaultRiskTier, NormalizeRisk(0))
	assert.Equal(t, DefaultRiskTier, NormalizeRisk(-2))
	assert.Equal(t, 4, NormalizeRisk(4))
}

func TestWalletPosition(t *testing.T) {
	id := uuid.New()
	w := NewWallet(uuid.New())
	assert.Equal(t, DefaultMaxPositions, w.MaxPositions)
	assert.Equal(t, DefaultRiskTier, w.RiskTier)

	_, ok := w.Position(id)
	assert.False(t, ok)

	w.Positions = append(w.Positions, Position{InstrumentID: id, Quantity: 5})
	p, ok := w.Position(id)
	require.True(t, ok)
	assert.Equal(t, int64(5), p.Quantity)
}

func TestNotificationPayload(t *testing.T) {
	n := &Notification{}
	assert.True(t, n.Broadcast())
	require.NoError(t, n.SetPayload(map[string]string{"status": "approved"}))
	assert.JSONEq(t, `{"status":"approved"}`, n.Payload)

	recipient := uuid.New()
	n.RecipientID = &recipient
	assert.False(t, n.Broadcast())
}
