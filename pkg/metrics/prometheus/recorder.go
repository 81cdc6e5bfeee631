// Package prometheus implements metrics.Recorder on a dedicated Prometheus registry.
package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigerroll/covidash/pkg/metrics"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// Recorder is a Prometheus implementation of metrics.Recorder.
type Recorder struct {
	registry *prometheus.Registry

	refreshDurationSeconds *prometheus.HistogramVec
	refreshStatusCounter   *prometheus.CounterVec
	rowsReadCounter        *prometheus.CounterVec
	snapshotRecords        prometheus.Gauge
	joinGapCounter         *prometheus.CounterVec
	divisionEdgeCounter    prometheus.Counter
	exportDurationSeconds  *prometheus.HistogramVec
	exportStatusCounter    *prometheus.CounterVec
}

// NewRecorder creates a Recorder whose metric names are prefixed by namespace.
func NewRecorder(namespace string) *Recorder {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		refreshDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of snapshot refreshes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		refreshStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Total number of snapshot refreshes by status.",
		}, []string{"status"}),
		rowsReadCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rows_read_total",
			Help:      "Total raw rows read by metric table.",
		}, []string{"metric"}),
		snapshotRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_records",
			Help:      "Number of merged records in the published snapshot.",
		}),
		joinGapCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_gap_total",
			Help:      "Total (country, date) keys missing from at least one metric table, by the metrics they were present in.",
		}, []string{"present_in"}),
		divisionEdgeCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "division_edge_case_total",
			Help:      "Total merged records whose case fatality ratio was forced to 0 because confirmed was 0.",
		}),
		exportDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Duration of snapshot exports.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"exporter", "status"}),
		exportStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_total",
			Help:      "Total number of snapshot exports by exporter and status.",
		}, []string{"exporter", "status"}),
	}

	registry.MustRegister(r.refreshDurationSeconds)
	registry.MustRegister(r.refreshStatusCounter)
	registry.MustRegister(r.rowsReadCounter)
	registry.MustRegister(r.snapshotRecords)
	registry.MustRegister(r.joinGapCounter)
	registry.MustRegister(r.divisionEdgeCounter)
	registry.MustRegister(r.exportDurationSeconds)
	registry.MustRegister(r.exportStatusCounter)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *Recorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordRefresh records one refresh attempt.
func (r *Recorder) RecordRefresh(ctx context.Context, status string, duration time.Duration) {
	r.refreshStatusCounter.WithLabelValues(status).Inc()
	r.refreshDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
	logger.Debugf("Metrics: refresh %s in %.3fs", status, duration.Seconds())
}

// RecordRowsRead records raw rows read for a metric table.
func (r *Recorder) RecordRowsRead(ctx context.Context, metric string, rows int) {
	r.rowsReadCounter.WithLabelValues(metric).Add(float64(rows))
}

// RecordPublished records the diagnostics of a published snapshot.
func (r *Recorder) RecordPublished(ctx context.Context, records int, joinGaps map[string]int, divisionEdgeCases int) {
	r.snapshotRecords.Set(float64(records))
	for presentIn, n := range joinGaps {
		r.joinGapCounter.WithLabelValues(presentIn).Add(float64(n))
	}
	r.divisionEdgeCounter.Add(float64(divisionEdgeCases))
}

// RecordExport records one exporter run.
func (r *Recorder) RecordExport(ctx context.Context, exporter string, status string, duration time.Duration) {
	r.exportStatusCounter.WithLabelValues(exporter, status).Inc()
	r.exportDurationSeconds.WithLabelValues(exporter, status).Observe(duration.Seconds())
}

var _ metrics.Recorder = (*Recorder)(nil)
