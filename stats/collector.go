// Package stats keeps Prometheus metrics about image build runs and
// attempts, and can export them in the node_exporter textfile format.
package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go-mkimg/build"
	"go-mkimg/image"
	"go-mkimg/supervisor"
)

const namespace = "mkimg"

// Collector records run and attempt metrics on its own registry. It
// implements build.Observer.
//
// Labels:
//   - status: success, failed, timeout, canceled
//   - result: success, failed, aborted (runs); ok, failed (unmounts)
type Collector struct {
	registry *prometheus.Registry

	AttemptsTotal       *prometheus.CounterVec
	AttemptDuration     *prometheus.HistogramVec
	ForcedUnmountsTotal *prometheus.CounterVec
	ForcedStopsTotal    prometheus.Counter
	RunsTotal           *prometheus.CounterVec
	RunAttempts         prometheus.Histogram
	RunDuration         prometheus.Histogram
	LastRunSuccess      prometheus.Gauge
	LastRunTimestamp    prometheus.Gauge
	AttemptInProgress   prometheus.Gauge
}

var _ build.Observer = (*Collector)(nil)

// NewCollector creates a Collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		AttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Build attempts by final status",
		}, []string{"status"}),
		AttemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of build attempts, shutdown included",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"status"}),
		ForcedUnmountsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_unmounts_total",
			Help:      "Forced unmounts performed after failed attempts",
		}, []string{"result"}),
		ForcedStopsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_stops_total",
			Help:      "Attempts where a still-running script had to be terminated",
		}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Build runs by result",
		}, []string{"result"}),
		RunAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_attempts",
			Help:      "Attempts needed per run",
			Buckets:   []float64{1, 2, 3, 5, 10, 20},
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of build runs",
			Buckets:   prometheus.ExponentialBuckets(10, 3, 8),
		}),
		LastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run built its image, 0 otherwise",
		}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		AttemptInProgress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attempt_in_progress",
			Help:      "1 while an attempt is running",
		}),
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RunStarted(build.RunInfo) {}

func (c *Collector) AttemptStarted(build.RunInfo, int, image.BuildConfig) {
	c.AttemptInProgress.Set(1)
}

func (c *Collector) AttemptFinished(_ build.RunInfo, out supervisor.Outcome) {
	status := out.Status()
	c.AttemptInProgress.Set(0)
	c.AttemptsTotal.WithLabelValues(status).Inc()
	c.AttemptDuration.WithLabelValues(status).Observe(out.Duration.Seconds())

	if out.ForcedStop {
		c.ForcedStopsTotal.Inc()
	}
	if out.ForcedUnmountPerformed {
		result := "ok"
		if out.UnmountErr != nil {
			result = "failed"
		}
		c.ForcedUnmountsTotal.WithLabelValues(result).Inc()
	}
}

func (c *Collector) RunFinished(_ build.RunInfo, res *build.Result) {
	c.RunsTotal.WithLabelValues(runResult(res)).Inc()
	c.RunAttempts.Observe(float64(len(res.Attempts)))
	c.RunDuration.Observe(res.Duration.Seconds())
	c.LastRunTimestamp.Set(float64(time.Now().Unix()))
	if res.Success {
		c.LastRunSuccess.Set(1)
	} else {
		c.LastRunSuccess.Set(0)
	}
}

func runResult(res *build.Result) string {
	switch {
	case res.Success:
		return "success"
	case res.Aborted:
		return "aborted"
	default:
		return "failed"
	}
}

// WriteTextfile writes the metrics to path for the node_exporter textfile
// collector. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
