package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordItem(t *testing.T) {
	before := testutil.ToFloat64(ItemsTotal.WithLabelValues("finance", OutcomeMarked))
	RecordItem("finance", OutcomeMarked)
	RecordItem("finance", OutcomeMarked)
	assert.Equal(t, before+2, testutil.ToFloat64(ItemsTotal.WithLabelValues("finance", OutcomeMarked)))
}

func TestRecordDelivery_Status(t *testing.T) {
	ok := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("group", "ok"))
	bad := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("group", "error"))

	RecordDelivery("group", nil)
	RecordDelivery("group", errors.New("429"))

	assert.Equal(t, ok+1, testutil.ToFloat64(DeliveriesTotal.WithLabelValues("group", "ok")))
	assert.Equal(t, bad+1, testutil.ToFloat64(DeliveriesTotal.WithLabelValues("group", "error")))
}

func TestHealthHandler(t *testing.T) {
	h := &Health{IsHealthy: true}
	h.RecordPass(2*time.Second, 4)

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 4, body["last_delivered"])
	assert.EqualValues(t, 2000, body["last_duration_ms"])

	h.SetError("feed down")
	rec = httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "feed down")
}

func TestHealth_ErrorDuringPassSurvivesRecordPass(t *testing.T) {
	h := &Health{IsHealthy: true}

	h.StartPass()
	h.SetError("ledger insert failed")
	h.RecordPass(time.Second, 3)
	assert.Equal(t, false, h.GetStats()["is_healthy"])

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.StartPass()
	h.RecordPass(time.Second, 1)
	assert.Equal(t, true, h.GetStats()["is_healthy"])
	assert.Equal(t, "ledger insert failed", h.GetStats()["last_error"])
}
