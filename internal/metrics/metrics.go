// Package metrics exposes control-loop state as Prometheus metrics on a
// dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/pump-guard/internal/logic"
	"github.com/sweeney/pump-guard/internal/telemetry"
)

// Sample is the per-tick view the metrics are refreshed from. Counters
// are cumulative totals; Update adds the difference since the last call.
type Sample struct {
	CurrentAmps       float64
	PumpState         logic.PumpState
	Detection         logic.DetectionState
	Counts            logic.EventCounts
	Telemetry         telemetry.Stats
	SensorUnavailable int
	DryThresholdAmps  float64
}

// Metrics holds the collectors of one daemon.
type Metrics struct {
	reg *prometheus.Registry

	current   prometheus.Gauge
	pumpState prometheus.Gauge
	detection prometheus.Gauge
	threshold prometheus.Gauge
	buffered  prometheus.Gauge

	transitions *prometheus.CounterVec
	tick        prometheus.Histogram

	dryTrips    prometheus.Counter
	rejected    prometheus.Counter
	faults      prometheus.Counter
	unavailable prometheus.Counter
	delivered   prometheus.Counter
	dropped     prometheus.Counter
	failures    prometheus.Counter

	prev Sample
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pump_guard_current_amps",
			Help: "Most recent RMS pump current.",
		}),
		pumpState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pump_guard_pump_state",
			Help: "Pump state code (0 idle, 1 starting, 2 running, 3 stopping, 4 stopped, 5 fault).",
		}),
		detection: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pump_guard_detection_state",
			Help: "Dry-run detection code (0 wet, 1 suspect, 2 dry).",
		}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pump_guard_dry_threshold_amps",
			Help: "Configured dry-run current threshold.",
		}),
		buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pump_guard_telemetry_buffered",
			Help: "Telemetry records awaiting delivery.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pump_guard_transitions_total",
			Help: "Pump state transitions by target state.",
		}, []string{"to"}),
		tick: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pump_guard_tick_duration_seconds",
			Help:    "Wall time spent in one control tick.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
		dryTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_guard_dry_trips_total",
			Help: "Pump stops caused by dry-run detection.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_guard_rejected_starts_total",
			Help: "Start commands rejected by cooldown or fault.",
		}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_guard_faults_total",
			Help: "Entries into the FAULT state.",
		}),
		unavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_guard_sensor_unavailable_total",
			Help: "Sensor samples that could not be read.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_guard_telemetry_delivered_total",
			Help: "Telemetry records accepted by the sink.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_guard_telemetry_dropped_total",
			Help: "Telemetry records evicted from a full buffer.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pump_guard_telemetry_failures_total",
			Help: "Failed or abandoned telemetry pushes.",
		}),
	}

	m.reg.MustRegister(
		m.current, m.pumpState, m.detection, m.threshold, m.buffered,
		m.transitions, m.tick,
		m.dryTrips, m.rejected, m.faults, m.unavailable,
		m.delivered, m.dropped, m.failures,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Update refreshes gauges and advances counters from cumulative totals.
func (m *Metrics) Update(s Sample) {
	m.current.Set(s.CurrentAmps)
	m.pumpState.Set(float64(s.PumpState.Code()))
	m.detection.Set(float64(s.Detection.Code()))
	m.threshold.Set(s.DryThresholdAmps)
	m.buffered.Set(float64(s.Telemetry.Buffered))

	addDelta(m.dryTrips, uint64(s.Counts.DryTrips), uint64(m.prev.Counts.DryTrips))
	addDelta(m.rejected, uint64(s.Counts.RejectedStarts), uint64(m.prev.Counts.RejectedStarts))
	addDelta(m.faults, uint64(s.Counts.Faults), uint64(m.prev.Counts.Faults))
	addDelta(m.unavailable, uint64(s.SensorUnavailable), uint64(m.prev.SensorUnavailable))
	addDelta(m.delivered, s.Telemetry.Delivered, m.prev.Telemetry.Delivered)
	addDelta(m.dropped, s.Telemetry.Dropped, m.prev.Telemetry.Dropped)
	addDelta(m.failures, s.Telemetry.Failures, m.prev.Telemetry.Failures)

	m.prev = s
}

// ObserveTransitions counts transitions by target state.
func (m *Metrics) ObserveTransitions(trs []logic.Transition) {
	for _, tr := range trs {
		m.transitions.WithLabelValues(string(tr.To)).Inc()
	}
}

// ObserveTick records the wall time of one tick.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.tick.Observe(d.Seconds())
}

func addDelta(c prometheus.Counter, cur, prev uint64) {
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}
