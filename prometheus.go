package anoa

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusReporter exports collector label counts as prometheus metrics.
//
// Each label becomes one series of the records_total counter, keyed by the
// label's string form in the "label" dimension. Reporting the same Counts
// twice counts them twice; report each collector once, after it is drained.
type PrometheusReporter[M comparable] struct {
	records *prometheus.CounterVec
	labels  prometheus.Gauge
}

// NewPrometheusReporter creates a reporter and registers its metrics with
// registerer. A nil registerer leaves the metrics unregistered.
func NewPrometheusReporter[M comparable](registerer prometheus.Registerer, namespace, subsystem string) *PrometheusReporter[M] {
	r := &PrometheusReporter[M]{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "records_total",
			Help:      "Number of records carrying each metadata label",
		}, []string{"label"}),
		labels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "labels",
			Help:      "Number of distinct metadata labels in the last report",
		}),
	}

	if registerer != nil {
		registerer = prometheus.WrapRegistererWith(
			prometheus.Labels{"component": "anoa"},
			registerer,
		)
		registerer.MustRegister(r.records, r.labels)
	}
	return r
}

// Report adds every count of counts to the exported series.
func (r *PrometheusReporter[M]) Report(counts *Counts[M]) {
	for label, n := range counts.All() {
		r.records.WithLabelValues(fmt.Sprint(label)).Add(float64(n))
	}
	r.labels.Set(float64(counts.Len()))
}

// Collectors returns the underlying collectors, for registries built by the caller.
func (r *PrometheusReporter[M]) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.records, r.labels}
}
