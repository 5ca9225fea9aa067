package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.PairDone("1h", "exp", true)
	m.PairDone("1h", "exp", false)
	m.SeriesBuilt("1h", 120, 3)

	if got := counterValue(t, m.PairsSimulated.WithLabelValues("1h", "exp")); got != 2 {
		t.Errorf("expected 2 pairs, got %.0f", got)
	}
	if got := counterValue(t, m.PairsNoData.WithLabelValues("1h", "exp")); got != 1 {
		t.Errorf("expected 1 no-data pair, got %.0f", got)
	}
	if got := counterValue(t, m.GapFilledTotal.WithLabelValues("1h")); got != 3 {
		t.Errorf("expected 3 gap-filled, got %.0f", got)
	}

	// a second set on a fresh registry must not panic
	NewMetrics(prometheus.NewRegistry())
}

func TestHealthz(t *testing.T) {
	h := NewHealthStatus()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before anything is up, got %d", rec.Code)
	}

	h.SetFeedConnected(true)
	h.SetSQLiteOK(true)
	h.SetResolution("15m")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with redis disabled, got %d", rec.Code)
	}
	var body struct {
		Status     string `json:"status"`
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" || body.Resolution != "15m" {
		t.Errorf("unexpected body %+v", body)
	}

	h.SetRedisEnabled(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected degraded when enabled redis is down, got %d", rec.Code)
	}
}
