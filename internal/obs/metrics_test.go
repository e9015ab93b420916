package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentRecordsStatus(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/brew", "418"))

	req := httptest.NewRequest(http.MethodGet, "/brew", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/brew", "418"))
	if after != before+1 {
		t.Fatalf("counter delta = %v, want 1", after-before)
	}
}

func TestInstrumentDefaultsTo200(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok")) // implicit 200
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/implicit", "200"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/implicit", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/implicit", "200"))
	if after != before+1 {
		t.Fatalf("counter delta = %v, want 1", after-before)
	}
}

func TestObserveOutcomes(t *testing.T) {
	before := testutil.ToFloat64(authLoginsTotal.WithLabelValues("denied"))
	ObserveLogin("denied")
	if got := testutil.ToFloat64(authLoginsTotal.WithLabelValues("denied")); got != before+1 {
		t.Fatalf("login counter delta = %v", got-before)
	}

	before = testutil.ToFloat64(authRotationsTotal.WithLabelValues("ok"))
	ObserveRotation("ok")
	if got := testutil.ToFloat64(authRotationsTotal.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("rotation counter delta = %v", got-before)
	}
}
