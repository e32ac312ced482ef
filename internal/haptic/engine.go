// ABOUTME: Haptic engine dispatching library patterns scaled for the device
// ABOUTME: Tracks an isVibrating flag cleared by a scheduled timer
package haptic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/capability"
	"github.com/Resonate-Protocol/resonate-feedback/internal/clock"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	// ErrHapticUnsupported means the device has no vibration actuator.
	// Callers check IsSupported first and degrade silently.
	ErrHapticUnsupported = errors.New("haptics not supported")
	ErrUnknownPattern    = errors.New("unknown haptic pattern")
	ErrPatternExists     = errors.New("haptic pattern already exists")
)

// CustomPatternID is the id reported for VibrateCustom dispatches
const CustomPatternID = "custom"

// Config configures an Engine
type Config struct {
	Capabilities capability.Capabilities
	Vibrator     Vibrator
	Clock        clock.Clock
	Logger       zerolog.Logger
	// OnDispatch is called after a pattern reaches the vibrator
	OnDispatch func(patternID string)
}

// Capabilities describes the haptic subsystem for diagnostics
type Capabilities struct {
	Supported       bool    `json:"supported"`
	Enabled         bool    `json:"enabled"`
	DeviceIntensity float64 `json:"device_intensity"`
	Intensity       float64 `json:"intensity"`
	Patterns        int     `json:"patterns"`
	Vibrating       bool    `json:"vibrating"`
}

// Engine owns the pattern library and the single in-flight vibration
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	log       zerolog.Logger
	patterns  map[string]Pattern
	vibrating bool
	gen       uint64
	timer     clock.Timer
	enabled   bool
	intensity float64
}

// New creates an engine loaded with DefaultPatterns
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	e := &Engine{
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "haptic").Logger(),
		patterns:  make(map[string]Pattern),
		enabled:   true,
		intensity: 1,
	}
	for _, p := range DefaultPatterns() {
		e.patterns[p.ID] = p
	}
	return e
}

// Scale multiplies every envelope element by factor, rounding to the
// nearest millisecond
func Scale(envelope []time.Duration, factor float64) []time.Duration {
	out := make([]time.Duration, len(envelope))
	for i, d := range envelope {
		msec := float64(d) / float64(time.Millisecond)
		out[i] = time.Duration(math.Round(msec*factor)) * time.Millisecond
	}
	return out
}

// IsSupported reports whether a vibration actuator is available
func (e *Engine) IsSupported() bool {
	return e.cfg.Capabilities.Vibration && e.cfg.Vibrator != nil
}

// IsVibrating reports whether a dispatched pattern is still expected to run
func (e *Engine) IsVibrating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vibrating
}

// SetEnabled toggles dispatch. Disabled engines accept calls and do nothing.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
	if !enabled {
		e.Stop()
	}
}

// SetIntensity sets a global factor in [0,1] applied on top of the
// pattern and device intensities
func (e *Engine) SetIntensity(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intensity = math.Max(0, math.Min(1, v))
}

// Vibrate dispatches p, stopping any in-flight pattern first
func (e *Engine) Vibrate(ctx context.Context, p Pattern) error {
	if !e.IsSupported() {
		return ErrHapticUnsupported
	}

	e.mu.Lock()
	if !e.enabled {
		e.mu.Unlock()
		return nil
	}
	if e.vibrating {
		e.stopLocked()
		_ = e.cfg.Vibrator.Cancel()
	}

	factor := p.Intensity * e.cfg.Capabilities.VibrationIntensity() * e.intensity
	envelope := Scale(p.Envelope, factor)

	e.gen++
	gen := e.gen
	e.vibrating = true
	e.timer = e.cfg.Clock.AfterFunc(p.TotalDuration(), func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.gen == gen {
			e.vibrating = false
			e.timer = nil
		}
	})
	e.mu.Unlock()

	if err := e.cfg.Vibrator.Vibrate(ctx, envelope); err != nil {
		e.mu.Lock()
		if e.gen == gen {
			e.stopLocked()
		}
		e.mu.Unlock()
		e.log.Warn().Err(err).Str("pattern", p.ID).Msg("vibrate failed")
		return fmt.Errorf("vibrate %s: %w", p.ID, err)
	}

	e.log.Debug().
		Str("pattern", p.ID).
		Float64("factor", factor).
		Durs("envelope", envelope).
		Msg("dispatched")
	if e.cfg.OnDispatch != nil {
		e.cfg.OnDispatch(p.ID)
	}
	return nil
}

// Trigger dispatches a library pattern by id
func (e *Engine) Trigger(ctx context.Context, id string) error {
	p, ok := e.Pattern(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPattern, id)
	}
	return e.Vibrate(ctx, p)
}

// VibrateCustom dispatches an ad-hoc envelope at the given intensity
func (e *Engine) VibrateCustom(ctx context.Context, envelope []time.Duration, intensity float64) error {
	return e.Vibrate(ctx, Pattern{
		ID:        CustomPatternID,
		Name:      "Custom",
		Envelope:  envelope,
		Intensity: math.Max(0, math.Min(1, intensity)),
	})
}

// Test runs a short fixed pattern
func (e *Engine) Test(ctx context.Context) error {
	return e.VibrateCustom(ctx, ms(100, 50, 100), 0.5)
}

// Stop cancels the in-flight pattern, if any
func (e *Engine) Stop() {
	e.mu.Lock()
	wasVibrating := e.vibrating
	e.stopLocked()
	e.mu.Unlock()

	if wasVibrating && e.cfg.Vibrator != nil {
		if err := e.cfg.Vibrator.Cancel(); err != nil {
			e.log.Debug().Err(err).Msg("cancel failed")
		}
	}
}

func (e *Engine) stopLocked() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.vibrating = false
}

// Pattern looks up a library pattern
func (e *Engine) Pattern(id string) (Pattern, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.patterns[id]
	return p, ok
}

// Patterns lists library patterns sorted by id. An empty category lists all.
func (e *Engine) Patterns(category Category) []Pattern {
	e.mu.Lock()
	all := lo.Values(e.patterns)
	e.mu.Unlock()

	out := lo.Filter(all, func(p Pattern, _ int) bool {
		return category == "" || p.Category == category
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddPattern adds a custom pattern. Existing patterns are never replaced.
func (e *Engine) AddPattern(p Pattern) error {
	if p.ID == "" {
		return errors.New("pattern id is required")
	}
	if len(p.Envelope) == 0 {
		return fmt.Errorf("pattern %s: empty envelope", p.ID)
	}
	p.Envelope = append([]time.Duration(nil), p.Envelope...)
	p.Intensity = math.Max(0, math.Min(1, p.Intensity))

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.patterns[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrPatternExists, p.ID)
	}
	e.patterns[p.ID] = p
	return nil
}

// Capabilities reports support and current settings
func (e *Engine) Capabilities() Capabilities {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Capabilities{
		Supported:       e.IsSupported(),
		Enabled:         e.enabled,
		DeviceIntensity: e.cfg.Capabilities.VibrationIntensity(),
		Intensity:       e.intensity,
		Patterns:        len(e.patterns),
		Vibrating:       e.vibrating,
	}
}
