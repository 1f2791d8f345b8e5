package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordMutation(t *testing.T) {
	before := testutil.ToFloat64(ledgerVolume.WithLabelValues("withdrawal"))

	RecordMutation("withdrawal", "ok", -250)
	RecordMutation("withdrawal", "insufficient_balance", -1000)

	assert.Equal(t, before+250, testutil.ToFloat64(ledgerVolume.WithLabelValues("withdrawal")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(ledgerMutations.WithLabelValues("withdrawal", "insufficient_balance")), 1.0)
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordAudit("healthy", nil, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "delivery_ledger_audit_runs_total"))
}

func TestRecordDelivery(t *testing.T) {
	before := testutil.ToFloat64(deliveries.WithLabelValues("cash", "ok"))
	RecordDelivery("cash", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(deliveries.WithLabelValues("cash", "ok")))
}
