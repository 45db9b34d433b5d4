package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKind(t *testing.T) {
	assert.True(t, Is(InstrumentNotFound, NotFound))
	assert.True(t, Is(WalletNotFound, NotFound))
	assert.True(t, Is(DuplicateName, Conflict))
	assert.True(t, Is(NoFieldsProvided, ValidationFailed))
	assert.False(t, Is(InstrumentNotFound, Conflict))

	wrapped := fmt.Errorf("loading: %w", RiskTierExceeded.Explain("risk 3 over tier 1"))
	assert.True(t, Is(wrapped, RiskTierExceeded))
}

func TestIsFollowsCause(t *testing.T) {
	sentinel := errors.New("boom")
	err := Internal.Wrap(sentinel)
	assert.True(t, Is(err, sentinel))
	assert.True(t, Is(err, Internal))
	assert.Contains(t, err.Error(), "boom")
}

func TestCopiesDoNotShareState(t *testing.T) {
	a := ValidationFailed.WithField("required", "name", "missing")
	b := a.WithField("out_of_range", "risk", "too high")
	assert.Len(t, a.Fields, 1)
	assert.Len(t, b.Fields, 2)
	assert.Empty(t, ValidationFailed.Fields)

	d := RiskTierExceeded.WithDetail("instrument_risk", 3)
	assert.Equal(t, 3, d.Details["instrument_risk"])
	assert.Empty(t, RiskTierExceeded.Details)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[*Error]int{
		InstrumentNotFound:            http.StatusNotFound,
		DuplicateName:                 http.StatusConflict,
		InvalidAmount:                 http.StatusBadRequest,
		InsufficientBalance:           http.StatusBadRequest,
		TransactionValueLimitExceeded: http.StatusBadRequest,
		AlreadyProcessed:              http.StatusBadRequest,
		Unauthorized:                  http.StatusUnauthorized,
		Forbidden:                     http.StatusForbidden,
		Unavailable:                   http.StatusServiceUnavailable,
		New("whatever"):               http.StatusInternalServerError,
	}
	for err, status := range cases {
		assert.Equal(t, status, err.HTTPStatus(), err.Kind)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindPositionLimitExceeded, KindOf(PositionLimitExceeded))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestTrace(t *testing.T) {
	err := Conflict.Trace()
	assert.Contains(t, err.Error(), "Trace:")
	assert.NotContains(t, Conflict.Error(), "Trace:")
}

func TestProblemDetails(t *testing.T) {
	err := RiskTierExceeded.
		Explain("instrument risk 3 exceeds wallet risk tier 1").
		WithDetail("instrument_risk", 3).
		WithDetail("wallet_risk_tier", 1)

	p := FromError(fmt.Errorf("purchase: %w", err), "/api/v1/purchases")
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "Risk Tier Exceeded", p.Title)
	assert.Equal(t, "https://api.investex.dev/errors/risk-tier-exceeded", p.Type)

	raw, mErr := json.Marshal(p)
	require.NoError(t, mErr)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "instrument risk 3 exceeds wallet risk tier 1", body["detail"])
	assert.Equal(t, "/api/v1/purchases", body["instance"])
	assert.Equal(t, KindRiskTierExceeded, body["kind"])
	assert.EqualValues(t, 3, body["instrument_risk"])
	assert.EqualValues(t, 1, body["wallet_risk_tier"])
}

func TestProblemDetailsFields(t *testing.T) {
	err := ValidationFailed.WithField("required", "name", "must not be empty")
	p := err.ToProblemDetails("")
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "name", p.Errors[0].Field)
	assert.Equal(t, "validation failed", p.Detail)
}

func TestFromErrorHidesUnknownErrors(t *testing.T) {
	p := FromError(errors.New("pq: password authentication failed"), "/x")
	assert.Equal(t, http.StatusInternalServerError, p.Status)
	assert.NotContains(t, p.Detail, "password")
}
