// Package metrics instruments the analyzer core with Prometheus
// collectors: inbox/outbox queue depth, worker busy/idle state,
// sample-buffer pool occupancy, PSD emission cadence, and scheduler
// task latency.
//
// Grounded on prometheus.go's PrometheusMetrics: promauto-constructed
// GaugeVec/CounterVec/Histogram collectors registered against a
// dedicated registry rather than the global default, since this
// package is embedded inside a library rather than owning main().
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds every metric this module exports. Construct once per
// Analyzer with New and wire the returned instance into the analyzer,
// scheduler and buffer pool call sites that move the needles.
type Collectors struct {
	Registry *prometheus.Registry

	QueueDepth      *prometheus.GaugeVec
	WorkerState     *prometheus.GaugeVec
	BufferPoolUsed  prometheus.Gauge
	BufferPoolTotal prometheus.Gauge
	PSDEmitted      prometheus.Counter
	PSDCadence      prometheus.Histogram
	TaskLatency     *prometheus.HistogramVec
	HopCount        *prometheus.CounterVec
	OverridableHits prometheus.Counter
}

// New constructs and registers every collector against a fresh
// registry, isolated from any process-global registry the embedding
// application may already run.
func New() *Collectors {
	reg := prometheus.NewRegistry()

	c := &Collectors{
		Registry: reg,
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sdrcore_mailbox_queue_depth",
				Help: "Number of envelopes currently queued on a mailbox.",
			},
			[]string{"mailbox"},
		),
		WorkerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sdrcore_worker_busy",
				Help: "1 if the named worker is currently executing a callback, 0 if idle.",
			},
			[]string{"worker"},
		),
		BufferPoolUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sdrcore_buffer_pool_acquired",
			Help: "Number of sample buffers currently acquired from the pool.",
		}),
		BufferPoolTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sdrcore_buffer_pool_allocated",
			Help: "Number of sample buffers the pool has allocated so far.",
		}),
		PSDEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sdrcore_psd_emitted_total",
			Help: "Total number of PSD messages written to the outbox.",
		}),
		PSDCadence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sdrcore_psd_interval_seconds",
			Help:    "Observed interval between successive PSD emissions.",
			Buckets: prometheus.DefBuckets,
		}),
		TaskLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sdrcore_inspector_task_latency_seconds",
				Help:    "Time a scheduler task spent in ProcessBuffer.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"worker"},
		),
		HopCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sdrcore_wide_spectrum_hops_total",
				Help: "Total number of wide-spectrum sweep hops performed, by strategy.",
			},
			[]string{"strategy"},
		),
		OverridableHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sdrcore_overridable_requests_coalesced_total",
			Help: "Total number of overridable SetFreq/SetBandwidth requests that replaced an already-pending one.",
		}),
	}

	reg.MustRegister(
		c.QueueDepth,
		c.WorkerState,
		c.BufferPoolUsed,
		c.BufferPoolTotal,
		c.PSDEmitted,
		c.PSDCadence,
		c.TaskLatency,
		c.HopCount,
		c.OverridableHits,
	)
	return c
}

// ObservePSDInterval records the elapsed time since the previous PSD
// emission and bumps the emitted counter.
func (c *Collectors) ObservePSDInterval(since time.Time) {
	c.PSDEmitted.Inc()
	if !since.IsZero() {
		c.PSDCadence.Observe(time.Since(since).Seconds())
	}
}

// ObserveTaskLatency records how long a scheduler task spent in
// ProcessBuffer on the named worker.
func (c *Collectors) ObserveTaskLatency(worker string, d time.Duration) {
	c.TaskLatency.WithLabelValues(worker).Observe(d.Seconds())
}

// SetWorkerBusy marks a named worker's busy/idle gauge.
func (c *Collectors) SetWorkerBusy(worker string, busy bool) {
	v := 0.0
	if busy {
		v = 1.0
	}
	c.WorkerState.WithLabelValues(worker).Set(v)
}

// SetQueueDepth records the current depth of a named mailbox.
func (c *Collectors) SetQueueDepth(mailbox string, depth int) {
	c.QueueDepth.WithLabelValues(mailbox).Set(float64(depth))
}

// IncHop records one wide-spectrum hop performed under the given
// strategy label ("progressive" or "stochastic").
func (c *Collectors) IncHop(strategy string) {
	c.HopCount.WithLabelValues(strategy).Inc()
}
