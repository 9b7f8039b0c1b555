// Package metrics exposes request queue and sync pass metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "catalog"

// Collector is a prometheus.Collector for the sync engine. A nil *Collector
// is valid and records nothing.
type Collector struct {
	queueInFlight   prometheus.Gauge
	queueWaiting    prometheus.Gauge
	queueTasks      *prometheus.CounterVec
	queueWait       prometheus.Histogram
	syncRuns        *prometheus.CounterVec
	syncCandidates  *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	imageMirrorErrs prometheus.Counter
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		queueInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "request_queue",
				Name:      "in_flight",
				Help:      "Outbound vendor tasks currently executing.",
			},
		),
		queueWaiting: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "request_queue",
				Name:      "waiting",
				Help:      "Outbound vendor tasks waiting for a slot.",
			},
		),
		queueTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "request_queue",
				Name:      "tasks_total",
				Help:      "Outbound vendor tasks by kind and result.",
			}, []string{"task", "result"},
		),
		queueWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "request_queue",
				Name:      "wait_seconds",
				Help:      "Time tasks spent waiting for a queue slot.",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
			},
		),
		syncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "sync",
				Name:      "runs_total",
				Help:      "Finished sync passes by vendor and terminal status.",
			}, []string{"vendor", "status"},
		),
		syncCandidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "sync",
				Name:      "candidates_total",
				Help:      "Candidate outcomes by vendor.",
			}, []string{"vendor", "outcome"},
		),
		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "sync",
				Name:      "duration_seconds",
				Help:      "Wall time of sync passes.",
				Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
			}, []string{"vendor"},
		),
		imageMirrorErrs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "image_mirror_failures_total",
				Help:      "Images that could not be copied to object storage.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.queueInFlight.Describe(ch)
	c.queueWaiting.Describe(ch)
	c.queueTasks.Describe(ch)
	c.queueWait.Describe(ch)
	c.syncRuns.Describe(ch)
	c.syncCandidates.Describe(ch)
	c.syncDuration.Describe(ch)
	c.imageMirrorErrs.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.queueInFlight.Collect(ch)
	c.queueWaiting.Collect(ch)
	c.queueTasks.Collect(ch)
	c.queueWait.Collect(ch)
	c.syncRuns.Collect(ch)
	c.syncCandidates.Collect(ch)
	c.syncDuration.Collect(ch)
	c.imageMirrorErrs.Collect(ch)
}

func (c *Collector) QueueState(inFlight, waiting int) {
	if c == nil {
		return
	}
	c.queueInFlight.Set(float64(inFlight))
	c.queueWaiting.Set(float64(waiting))
}

func (c *Collector) QueueTask(task, result string, waited time.Duration) {
	if c == nil {
		return
	}
	c.queueTasks.WithLabelValues(task, result).Inc()
	c.queueWait.Observe(waited.Seconds())
}

func (c *Collector) SyncFinished(vendor, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.syncRuns.WithLabelValues(vendor, status).Inc()
	c.syncDuration.WithLabelValues(vendor).Observe(elapsed.Seconds())
}

func (c *Collector) Candidate(vendor, outcome string) {
	if c == nil {
		return
	}
	c.syncCandidates.WithLabelValues(vendor, outcome).Inc()
}

func (c *Collector) ImageMirrorFailed() {
	if c == nil {
		return
	}
	c.imageMirrorErrs.Inc()
}

// Handler serves the collector plus Go runtime metrics.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(prometheus.NewGoCollector()); err != nil {
		return nil, err
	}
	if c != nil {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
