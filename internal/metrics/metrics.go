// ABOUTME: Prometheus collectors for the feedback engine
// ABOUTME: Registered against a caller-supplied registerer
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "feedback"

// Metrics holds every engine collector
type Metrics struct {
	SoundsStarted    *prometheus.CounterVec
	HapticDispatches *prometheus.CounterVec
	Utterances       *prometheus.CounterVec
	Events           *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec

	ActiveInstances     prometheus.Gauge
	ContextState        *prometheus.GaugeVec
	BatteryLevel        prometheus.Gauge
	MaxConcurrentSounds prometheus.Gauge
	SpatialEnabled      prometheus.Gauge
}

// New registers the collectors with reg. A nil reg creates unregistered
// collectors, which is what tests and library embedders without a
// metrics endpoint want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SoundsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sounds_started_total",
			Help:      "Sounds started, by channel",
		}, []string{"kind"}),
		HapticDispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "haptic_dispatches_total",
			Help:      "Vibration patterns sent to the actuator",
		}, []string{"pattern"}),
		Utterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Narration utterances, by outcome",
		}, []string{"outcome"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "UI events received, by type",
		}, []string{"type"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_cache_lookups_total",
			Help:      "Decoded asset cache lookups, by result",
		}, []string{"result"}),
		ActiveInstances: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_instances",
			Help:      "Playing or paused sound instances",
		}),
		ContextState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_state",
			Help:      "1 for the current audio context state, 0 otherwise",
		}, []string{"state"}),
		BatteryLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "battery_level",
			Help:      "Last reported battery level in [0,1]",
		}),
		MaxConcurrentSounds: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_concurrent_sounds",
			Help:      "Current optimizer limit on live instances",
		}),
		SpatialEnabled: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spatial_enabled",
			Help:      "1 when spatial positioning is enabled",
		}),
	}
}

// SetContextState marks state as current among states
func (m *Metrics) SetContextState(state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ContextState.WithLabelValues(s).Set(v)
	}
}

// SetBool sets g to 1 or 0
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
