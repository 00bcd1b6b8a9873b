// Package metrics records generator run metrics in a private Prometheus
// registry and writes them in node-exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lifesim"

// Metrics holds the collectors for one process. It satisfies the
// simulation observer interface and is safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	subjects        *prometheus.CounterVec
	subjectDuration prometheus.Histogram
	rows            prometheus.Counter
	runDuration     prometheus.Gauge
	lastRun         prometheus.Gauge
	bytesWritten    *prometheus.CounterVec
	sinkRows        *prometheus.CounterVec
	published       *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		subjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subjects_simulated_total",
			Help:      "Subjects simulated, by archetype.",
		}, []string{"archetype"}),
		subjectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subject_duration_seconds",
			Help:      "Wall time to simulate one subject's full trajectory.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_generated_total",
			Help:      "Day records generated.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the most recent simulation run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_bytes_written_total",
			Help:      "Bytes written to trajectory files, by format.",
		}, []string{"format"}),
		sinkRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_rows_loaded_total",
			Help:      "Rows loaded into SQL sinks, by driver.",
		}, []string{"driver"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_objects_total",
			Help:      "Objects uploaded to blob stores, by driver.",
		}, []string{"driver"}),
	}
	m.registry.MustRegister(
		m.subjects, m.subjectDuration, m.rows, m.runDuration, m.lastRun,
		m.bytesWritten, m.sinkRows, m.published,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SubjectDone records one simulated subject.
func (m *Metrics) SubjectDone(_ int, archetype string, days int, elapsed time.Duration) {
	m.subjects.WithLabelValues(archetype).Inc()
	m.rows.Add(float64(days))
	m.subjectDuration.Observe(elapsed.Seconds())
}

// ObserveRun records a finished simulation run.
func (m *Metrics) ObserveRun(elapsed time.Duration, finished time.Time) {
	m.runDuration.Set(elapsed.Seconds())
	m.lastRun.Set(float64(finished.UnixNano()) / 1e9)
}

// ObserveWrite records a written output file.
func (m *Metrics) ObserveWrite(format string, bytes int64) {
	m.bytesWritten.WithLabelValues(format).Add(float64(bytes))
}

// ObserveSink records rows loaded into a SQL sink.
func (m *Metrics) ObserveSink(driver string, rows int) {
	m.sinkRows.WithLabelValues(driver).Add(float64(rows))
}

// ObservePublish records uploaded objects.
func (m *Metrics) ObservePublish(driver string, objects int) {
	m.published.WithLabelValues(driver).Add(float64(objects))
}

// WriteTextfile atomically writes all metrics to path for the node-exporter
// textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
