package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// HistogramBuckets are in milliseconds. Purchases wait on a payment sheet,
// so the range runs well past typical request latencies.
var HistogramBuckets = []float64{
	25, 50, 100, 250, 500,
	1000, 2000, 5000, 10000,
	30000, 60000, 120000, 300000,
}

// Collector kinds understood by NewMetric.
const (
	CounterVec   = "counter_vec"
	HistogramVec = "histogram_vec"
	SummaryVec   = "summary_vec"
)

// Metric describes one labelled collector.
type Metric struct {
	Name        string
	Description string
	Type        string
	Args        []string
}

// NewMetric builds the collector for m.Type.
func NewMetric(m *Metric, subsystem string) (prometheus.Collector, error) {
	switch m.Type {
	case CounterVec:
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
		}, m.Args), nil
	case HistogramVec:
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
			Buckets:   HistogramBuckets,
		}, m.Args), nil
	case SummaryVec:
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Subsystem: subsystem,
			Name:      m.Name,
			Help:      m.Description,
		}, m.Args), nil
	default:
		return nil, fmt.Errorf("unsupported metric type %q for %s", m.Type, m.Name)
	}
}

var MetricsPurchaseEvent = &Metric{
	Name:        "purchase_event_total",
	Description: "Purchase progress events, partitioned by event name and provider.",
	Type:        CounterVec,
	Args:        []string{"event", "provider"},
}

var MetricsPurchaseDuration = &Metric{
	Name:        "purchase_dur_ms",
	Description: "Time from purchase start to outcome in milliseconds.",
	Type:        HistogramVec,
	Args:        []string{"provider", "outcome"},
}

// RefererKey is the request header recorded in the ref label.
const RefererKey = "X-Referer"
