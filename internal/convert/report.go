package convert

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/anoa"
)

// Report summarises one run.
type Report struct {
	RunID    string
	Records  int // records read, including those that failed to read
	Written  int // records that reached the sink
	Counts   *anoa.Counts[Label]
	Duration time.Duration
}

// Dropped returns the number of records that did not reach the sink.
func (r *Report) Dropped() int {
	return r.Records - r.Written
}

// Print writes the report as a table of label counts, most frequent first.
func (r *Report) Print(w io.Writer) error {
	type row struct {
		label string
		n     int
	}
	rows := make([]row, 0, r.Counts.Len())
	for label, n := range r.Counts.All() {
		rows = append(rows, row{label.String(), n})
	}
	slices.SortStableFunc(rows, func(a, b row) int {
		if c := cmp.Compare(b.n, a.n); c != 0 {
			return c
		}
		return cmp.Compare(a.label, b.label)
	})

	if _, err := fmt.Fprintf(w, "run %s: %d records, %d written, %d dropped in %s\n",
		r.RunID, r.Records, r.Written, r.Dropped(), r.Duration.Round(time.Millisecond)); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%8d  %s\n", row.n, row.label); err != nil {
			return err
		}
	}
	return nil
}

// writeTextfile exports the report in the Prometheus text format, for the
// node_exporter textfile collector.
func writeTextfile(path, namespace string, r *Report) error {
	registry := prometheus.NewRegistry()
	reporter := anoa.NewPrometheusReporter[Label](registry, namespace, "convert")
	reporter.Report(r.Counts)

	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "convert",
		Name:        "duration_seconds",
		Help:        "Wall time of the last conversion run",
		ConstLabels: prometheus.Labels{"run_id": r.RunID},
	})
	duration.Set(r.Duration.Seconds())
	registry.MustRegister(duration)

	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
