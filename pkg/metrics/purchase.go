package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PurchaseMetrics counts purchase progress events and times purchase attempts.
type PurchaseMetrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPurchaseMetrics registers the purchase collectors with reg. Collectors
// already registered by an earlier call are reused.
func NewPurchaseMetrics(reg prometheus.Registerer, subsystem string) (*PurchaseMetrics, error) {
	events, err := registerMetric(reg, MetricsPurchaseEvent, subsystem)
	if err != nil {
		return nil, err
	}
	duration, err := registerMetric(reg, MetricsPurchaseDuration, subsystem)
	if err != nil {
		return nil, err
	}
	return &PurchaseMetrics{
		events:   events.(*prometheus.CounterVec),
		duration: duration.(*prometheus.HistogramVec),
	}, nil
}

// registerMetric builds m and registers it, returning the collector already
// registered under the same name if there is one.
func registerMetric(reg prometheus.Registerer, m *Metric, subsystem string) (prometheus.Collector, error) {
	c, err := NewMetric(m, subsystem)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return c, nil
}

func (m *PurchaseMetrics) IncEvent(event, provider string) {
	m.events.WithLabelValues(event, provider).Inc()
}

func (m *PurchaseMetrics) ObserveDuration(provider, outcome string, start time.Time) {
	m.duration.WithLabelValues(provider, outcome).Observe(MillisecondsSince(start))
}
