package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPurchaseMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPurchaseMetrics(reg, "paycoord")
	require.NoError(t, err)

	m.IncEvent("payment_start", "")
	m.IncEvent("payment_completed", "wallet")
	m.IncEvent("payment_completed", "wallet")
	m.ObserveDuration("wallet", "completed", time.Now().Add(-time.Second))

	require.Equal(t, 3.0, counterTotal(t, reg, "paycoord_purchase_event_total"))

	again, err := NewPurchaseMetrics(reg, "paycoord")
	require.NoError(t, err)
	require.Same(t, m.events, again.events)
}

func TestNewMetric(t *testing.T) {
	tests := []struct {
		typ  string
		want prometheus.Collector
	}{
		{typ: CounterVec, want: &prometheus.CounterVec{}},
		{typ: HistogramVec, want: &prometheus.HistogramVec{}},
		{typ: SummaryVec, want: &prometheus.SummaryVec{}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			c, err := NewMetric(&Metric{Name: "x_total", Type: tt.typ, Args: []string{"a"}}, "paycoord")
			require.NoError(t, err)
			require.IsType(t, tt.want, c)
		})
	}

	_, err := NewMetric(&Metric{Name: "x", Type: "gauge"}, "paycoord")
	require.Error(t, err)
	_, err = NewPurchaseMetrics(prometheus.NewRegistry(), "paycoord")
	require.NoError(t, err)
}

func TestPrometheus_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	p := NewPrometheus(NewPrometheusOptions{Subsystem: "paycoord", Registry: reg})

	r := gin.New()
	p.Use(r)
	r.GET("/api/v1/purchase/status", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/purchase/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1.0, counterTotal(t, reg, "paycoord_req_total"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "paycoord_req_total")
}

func counterTotal(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
