package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FairForge/migwatch/internal/rate"
	"github.com/FairForge/migwatch/internal/stats"
)

// Collector holds the Prometheus metrics for the monitor. It uses a private
// registry so tests can build collectors freely without duplicate
// registration panics.
type Collector struct {
	v1Remaining     prometheus.Gauge
	v2Done          prometheus.Gauge
	queued          prometheus.Gauge
	processing      prometheus.Gauge
	recordErrors    prometheus.Gauge
	progressPercent prometheus.Gauge
	throughput      prometheus.Gauge
	etaSeconds      prometheus.Gauge

	pollsTotal       prometheus.Counter
	probeErrorsTotal *prometheus.CounterVec
	droppedEvents    prometheus.Counter

	registry *prometheus.Registry
}

// NewCollector creates and registers all metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		v1Remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "migwatch_v1_remaining",
			Help: "Records still on the old encryption version",
		}),
		v2Done: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "migwatch_v2_done",
			Help: "Records upgraded to the new encryption version",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "migwatch_queued",
			Help: "Active records queued for processing",
		}),
		processing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "migwatch_processing",
			Help: "Active records currently processing",
		}),
		recordErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "migwatch_record_errors",
			Help: "Active records in the error state",
		}),
		progressPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "migwatch_progress_percent",
			Help: "Migration completion percentage",
		}),
		throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "migwatch_throughput_per_hour",
			Help: "Estimated migration throughput in records per hour",
		}),
		etaSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "migwatch_eta_seconds",
			Help: "Estimated seconds until migration completion (0 when unknown)",
		}),
		pollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "migwatch_polls_total",
			Help: "Total number of completed store probes",
		}),
		probeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migwatch_probe_errors_total",
			Help: "Total number of failed store probes",
		}, []string{"kind"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "migwatch_events_dropped_total",
			Help: "Events dropped because the channel consumer fell behind",
		}),
		registry: registry,
	}

	registry.MustRegister(
		c.v1Remaining, c.v2Done, c.queued, c.processing, c.recordErrors,
		c.progressPercent, c.throughput, c.etaSeconds,
		c.pollsTotal, c.probeErrorsTotal, c.droppedEvents,
	)

	return c
}

// ObserveSample records one successful poll.
func (c *Collector) ObserveSample(snap stats.Snapshot, res rate.Result) {
	c.v1Remaining.Set(float64(snap.V1Remaining))
	c.v2Done.Set(float64(snap.V2Done))
	c.queued.Set(float64(snap.Queued))
	c.processing.Set(float64(snap.Processing))
	c.recordErrors.Set(float64(snap.Errors))
	c.progressPercent.Set(snap.ProgressPercent)
	c.throughput.Set(res.PerHour)
	if res.Known {
		c.etaSeconds.Set(res.ETA.Seconds())
	} else {
		c.etaSeconds.Set(0)
	}
	c.pollsTotal.Inc()
}

// ObserveProbeError records one failed poll.
func (c *Collector) ObserveProbeError(kind string) {
	c.probeErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveDroppedEvent records an event dropped on the full channel.
func (c *Collector) ObserveDroppedEvent() {
	c.droppedEvents.Inc()
}

// Handler returns the Prometheus scrape handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
