// Package metrics holds the Prometheus collectors for refwatch.
//
// A nil *Metrics is valid and every method on it is a no-op, so components
// can record unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes recorded by [Metrics.RefreshDone].
const (
	OutcomeSuccess         = "success"
	OutcomeFailed          = "failed"
	OutcomeNoAccount       = "no_account"
	OutcomeVanished        = "vanished"
	OutcomeSkippedInFlight = "skipped_inflight"
)

// Metrics groups the collectors exported by the status store.
type Metrics struct {
	refreshes      *prometheus.CounterVec
	inFlight       prometheus.Gauge
	queued         prometheus.Gauge
	sweeps         prometheus.Counter
	evictions      prometheus.Counter
	callbackPanics prometheus.Counter
}

// Indicator groups the collectors exported by the indicator updater. It is
// separate from [Metrics] so both can share one registry.
type Indicator struct {
	sweep *prometheus.HistogramVec
	items prometheus.Counter
}

// New registers the store collectors with reg. It panics if any collector is
// already registered, like promauto does.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refwatch_refreshes_total",
			Help: "Total number of commit status refresh tasks by outcome",
		}, []string{"outcome"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "refwatch_refreshes_in_flight",
			Help: "Number of refresh tasks currently holding a limiter slot",
		}),
		queued: f.NewGauge(prometheus.GaugeOpts{
			Name: "refwatch_limiter_queued",
			Help: "Number of refresh tasks waiting for a limiter slot",
		}),
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Name: "refwatch_sweeps_total",
			Help: "Total number of subscription sweeps executed",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Name: "refwatch_cache_evictions_total",
			Help: "Total number of status cache entries evicted by the LRU policy",
		}),
		callbackPanics: f.NewCounter(prometheus.CounterOpts{
			Name: "refwatch_callback_panics_total",
			Help: "Total number of subscriber callbacks that panicked",
		}),
	}
}

// NewIndicator registers the indicator updater collectors with reg.
func NewIndicator(reg prometheus.Registerer) *Indicator {
	f := promauto.With(reg)

	return &Indicator{
		sweep: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refwatch_indicator_sweep_seconds",
			Help:    "Duration of indicator sweeps split into active and paused time",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"phase"}),
		items: f.NewCounter(prometheus.CounterOpts{
			Name: "refwatch_indicator_items_total",
			Help: "Total number of items refreshed by the indicator updater",
		}),
	}
}

// RefreshDone counts a finished refresh task.
func (m *Metrics) RefreshDone(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// SetLimiter records the limiter occupancy.
func (m *Metrics) SetLimiter(active, queued int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(active))
	m.queued.Set(float64(queued))
}

// Sweep counts one subscription sweep.
func (m *Metrics) Sweep() {
	if m == nil {
		return
	}
	m.sweeps.Inc()
}

// Evicted counts one LRU eviction.
func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

// CallbackPanic counts one recovered callback panic.
func (m *Metrics) CallbackPanic() {
	if m == nil {
		return
	}
	m.callbackPanics.Inc()
}

// Sweep records the timing of a completed indicator sweep.
func (m *Indicator) Sweep(items int, active, paused time.Duration) {
	if m == nil {
		return
	}
	m.items.Add(float64(items))
	m.sweep.WithLabelValues("active").Observe(active.Seconds())
	m.sweep.WithLabelValues("paused").Observe(paused.Seconds())
}
