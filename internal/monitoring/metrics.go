// Package monitoring records pipeline run metrics and writes them as a
// Prometheus node-exporter textfile.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "broadband"

// Metrics holds the Prometheus counters, histograms, and gauges for a run.
// Each Metrics owns its registry so runs and tests never collide.
type Metrics struct {
	registry *prometheus.Registry

	StepsTotal   *prometheus.CounterVec   // labels: stage, outcome={ok,failed,skipped}
	StepDuration *prometheus.HistogramVec // labels: stage
	RowsWritten  *prometheus.CounterVec   // labels: table
	JoinRows     *prometheus.CounterVec   // labels: target, result={matched,unmatched}
	NullsFilled  *prometheus.CounterVec   // labels: table, field
	ReportRows   *prometheus.CounterVec   // labels: report
	LastRunOK    prometheus.Gauge
	LastRunTime  prometheus.Gauge
}

// NewMetrics creates metrics registered with a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Pipeline steps by stage and outcome.",
		}, []string{"stage", "outcome"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of a single pipeline step.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 900, 3600},
		}, []string{"stage"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written back to the attribute store by table.",
		}, []string{"table"}),
		JoinRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_rows_total",
			Help:      "Target rows visited by hash joins, by match result.",
		}, []string{"target", "result"}),
		NullsFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nulls_filled_total",
			Help:      "Null numeric values rewritten to zero.",
		}, []string{"table", "field"}),
		ReportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_rows_total",
			Help:      "Rows emitted per coverage report.",
		}, []string{"report"}),
		LastRunOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 when the last run finished without step failures, 0 otherwise.",
		}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	m.registry.MustRegister(
		m.StepsTotal,
		m.StepDuration,
		m.RowsWritten,
		m.JoinRows,
		m.NullsFilled,
		m.ReportRows,
		m.LastRunOK,
		m.LastRunTime,
	)
	return m
}

// Gatherer exposes the registry for tests and scrapers.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
