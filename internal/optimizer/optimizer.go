// ABOUTME: Adaptive resource optimizer reacting to battery and network samples
// ABOUTME: Holds the low-battery latch and drives context suspend and resume
package optimizer

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-feedback/internal/capability"
	"github.com/Resonate-Protocol/resonate-feedback/internal/config"
	"github.com/rs/zerolog"
)

// Suspender is the audio context as seen by the optimizer
type Suspender interface {
	Suspend()
	Resume()
}

// State is the full derived state after a sample
type State struct {
	BatteryLevel        float64  `json:"battery_level"`
	DownlinkMbps        float64  `json:"downlink_mbps"`
	EffectiveType       string   `json:"effective_type"`
	Tier                Tier     `json:"tier"`
	LowBattery          bool     `json:"low_battery"`
	Profile             Profile  `json:"profile"`
	ActiveOptimizations []string `json:"active_optimizations"`
}

// Config configures an Optimizer
type Config struct {
	Capabilities capability.Capabilities
	Suspender    Suspender
	// Threshold is the battery level at or below which degradation starts
	Threshold float64
	// Hysteresis multiplies Threshold to get the recovery level
	Hysteresis float64
	Logger     zerolog.Logger
}

// Optimizer recomputes the derived state on every sample
type Optimizer struct {
	mu          sync.Mutex
	cfg         Config
	log         zerolog.Logger
	battery     float64
	downlink    float64
	effective   string
	lowBattery  bool
	state       State
	subscribers map[int]func(State)
	nextSub     int
}

// New creates an optimizer seeded from the probed connection and a full battery
func New(cfg Config) *Optimizer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.2
	}
	if cfg.Hysteresis < 1 {
		cfg.Hysteresis = 1.2
	}
	o := &Optimizer{
		cfg:         cfg,
		log:         cfg.Logger.With().Str("component", "optimizer").Logger(),
		battery:     1,
		downlink:    cfg.Capabilities.Connection.DownlinkMbps,
		effective:   cfg.Capabilities.Connection.EffectiveType,
		subscribers: make(map[int]func(State)),
	}
	o.state = o.deriveLocked()
	return o
}

func (o *Optimizer) deriveLocked() State {
	tier := TierFor(o.downlink)
	s := State{
		BatteryLevel:  o.battery,
		DownlinkMbps:  o.downlink,
		EffectiveType: o.effective,
		Tier:          tier,
		LowBattery:    o.lowBattery,
		Profile:       Derive(o.cfg.Capabilities, o.lowBattery, tier),
	}
	if s.LowBattery {
		s.ActiveOptimizations = append(s.ActiveOptimizations, "battery_optimization")
	}
	if tier == TierSlow {
		s.ActiveOptimizations = append(s.ActiveOptimizations, "network_optimization")
	}
	if s.Profile.SimplifyGraph {
		s.ActiveOptimizations = append(s.ActiveOptimizations, "performance_optimization")
	}
	return s
}

// UpdateBattery records a battery level in [0,1]
func (o *Optimizer) UpdateBattery(level float64) {
	o.mu.Lock()
	o.battery = level
	was := o.lowBattery
	switch {
	case level <= o.cfg.Threshold:
		o.lowBattery = true
	case level > o.cfg.Threshold*o.cfg.Hysteresis:
		o.lowBattery = false
	}
	now := o.lowBattery
	state := o.recomputeLocked()
	o.mu.Unlock()

	if was != now {
		o.transition(now, level)
	}
	o.publish(state)
}

// UpdateNetwork records a downlink sample
func (o *Optimizer) UpdateNetwork(downlinkMbps float64, effectiveType string) {
	o.mu.Lock()
	before := TierFor(o.downlink)
	o.downlink = downlinkMbps
	if effectiveType != "" {
		o.effective = effectiveType
	}
	state := o.recomputeLocked()
	o.mu.Unlock()

	if before != state.Tier {
		o.log.Info().
			Str("from", string(before)).
			Str("to", string(state.Tier)).
			Float64("downlink_mbps", downlinkMbps).
			Msg("connection tier changed")
	}
	o.publish(state)
}

func (o *Optimizer) recomputeLocked() State {
	o.state = o.deriveLocked()
	return o.state
}

func (o *Optimizer) transition(low bool, level float64) {
	if low {
		o.log.Warn().Float64("battery", level).Msg("low battery, degrading")
		if o.cfg.Suspender != nil {
			o.cfg.Suspender.Suspend()
		}
		return
	}
	o.log.Info().Float64("battery", level).Msg("battery recovered, restoring")
	if o.cfg.Suspender != nil {
		o.cfg.Suspender.Resume()
	}
}

func (o *Optimizer) publish(s State) {
	o.mu.Lock()
	subs := make([]func(State), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// Subscribe registers fn for every recomputed state. The returned func
// removes it.
func (o *Optimizer) Subscribe(fn func(State)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = fn
	return func() {
		o.mu.Lock()
		delete(o.subscribers, id)
		o.mu.Unlock()
	}
}

// State returns the current derived state
func (o *Optimizer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Profile returns the current limits
func (o *Optimizer) Profile() Profile {
	return o.State().Profile
}

// OptimizedConfig adjusts base for the current device and conditions
func (o *Optimizer) OptimizedConfig(base config.Config) config.Config {
	s := o.State()
	caps := o.cfg.Capabilities
	out := base.Clone()

	if caps.IsMobile() {
		out.MaxConcurrentSounds = min(out.MaxConcurrentSounds, s.Profile.MaxConcurrentSounds)
		if !caps.Vibration {
			out.HapticEnabled = false
		}
		if !caps.Speech {
			out.VoiceVolume = 0
		}
	}
	if s.LowBattery {
		out.MasterVolume *= 0.7
		out.EnableSpatialAudio = false
	}
	if s.Tier == TierSlow {
		out.Quality = config.QualityLow
	}
	return out
}

// NeedsAggressiveOptimization reports weak or mobile hardware
func (o *Optimizer) NeedsAggressiveOptimization() bool {
	caps := o.cfg.Capabilities
	return caps.Cores <= 2 || caps.MemoryGB <= 2 || caps.IsMobile()
}

// IsMemoryUsageHigh reports whether the estimate exceeds 30% of device memory
func (o *Optimizer) IsMemoryUsageHigh(n int, avgMB float64) bool {
	limit := o.cfg.Capabilities.MemoryGB * 1024 * 0.3
	return EstimateMemoryUsageMB(n, avgMB) > limit
}

// Recommendations lists user-facing notes on the active adaptations
func (o *Optimizer) Recommendations() []string {
	s := o.State()
	caps := o.cfg.Capabilities
	var out []string
	if caps.IsMobile() {
		out = append(out, "Urządzenie mobilne wykryte - włączono optymalizacje baterii")
	}
	if caps.Cores <= 2 {
		out = append(out, "Niska liczba rdzeni procesora - uproszczono przetwarzanie audio")
	}
	if s.LowBattery {
		out = append(out, "Niski poziom baterii - zmniejszono jakość audio")
	}
	if s.Tier == TierSlow {
		out = append(out, "Wolne połączenie internetowe - włączono streaming")
	}
	if !caps.Vibration {
		out = append(out, "Haptyka nieobsługiwana - wyłączono wibracje")
	}
	if !caps.Speech {
		out = append(out, "Synteza mowy nieobsługiwana - ograniczono funkcje głosowe")
	}
	return out
}
