// Package metrics exposes scoring counters in Prometheus format.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qscore"

// Recorder records scoring activity using Prometheus.
type Recorder struct {
	registry    *prometheus.Registry
	outcomes    *prometheus.CounterVec
	rSquared    *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
	entries     prometheus.Gauge
	lastBatchTS prometheus.Gauge
}

// New creates a recorder with its own registry, so several recorders can
// coexist in one process.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Submissions processed, by terminal stage",
			},
			[]string{"stage"},
		),
		rSquared: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "r_squared",
				Help:      "Last R² computed for a submission",
			},
			[]string{"submission"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scoring_duration_seconds",
				Help:      "Time spent scoring one submission",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		entries: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "leaderboard_entries",
				Help:      "Number of entries on the leaderboard",
			},
		),
		lastBatchTS: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_batch_timestamp_seconds",
				Help:      "Unix time of the last completed scoring batch",
			},
		),
	}
}

// RecordOutcome records one processed submission.
func (r *Recorder) RecordOutcome(submission, stage string, r2 *float64, seconds float64) {
	r.outcomes.WithLabelValues(stage).Inc()
	r.duration.WithLabelValues(stage).Observe(seconds)
	if r2 != nil {
		r.rSquared.WithLabelValues(submission).Set(*r2)
	}
}

// RecordBatch marks the end of a batch at unix time ts.
func (r *Recorder) RecordBatch(ts float64) {
	r.lastBatchTS.Set(ts)
}

// RecordLeaderboardSize sets the current number of leaderboard entries.
func (r *Recorder) RecordLeaderboardSize(n int) {
	r.entries.Set(float64(n))
}

// WriteTextfile writes every metric to path in the text exposition format,
// for node_exporter's textfile collector or a later push.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
