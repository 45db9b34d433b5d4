package metrics

import (
	"database/sql"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePurchase(t *testing.T) {
	before := testutil.ToFloat64(PurchasesProcessed.WithLabelValues("success"))
	ObservePurchase("success", time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(PurchasesProcessed.WithLabelValues("success")))
}

func TestObserveDBStats(t *testing.T) {
	ObserveDBStats("primary", sql.DBStats{OpenConnections: 4, Idle: 3, InUse: 1})
	assert.Equal(t, 4.0, testutil.ToFloat64(DBOpenConns.WithLabelValues("primary")))
	assert.Equal(t, 3.0, testutil.ToFloat64(DBIdleConns.WithLabelValues("primary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DBInUseConns.WithLabelValues("primary")))
}
