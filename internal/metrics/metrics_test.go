package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersIncrementCounters(t *testing.T) {
	before := testutil.ToFloat64(refunds.WithLabelValues("provider_failed", "ok"))
	RecordRefund("provider_failed", true)
	assert.Equal(t, before+1, testutil.ToFloat64(refunds.WithLabelValues("provider_failed", "ok")))

	before = testutil.ToFloat64(generations.WithLabelValues("completed"))
	RecordGeneration("completed", 3*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(generations.WithLabelValues("completed")))
}

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/users/{id}", "418"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/42", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/users/{id}", "418")))
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordPurchase("ok")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mystic_bot_ledger_purchases_total")
}
