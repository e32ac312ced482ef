// ABOUTME: Orchestration facade constructing and owning every subsystem
// ABOUTME: Handles lifecycle, visibility, live config updates and status
package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/assets"
	"github.com/Resonate-Protocol/resonate-feedback/internal/audioctx"
	"github.com/Resonate-Protocol/resonate-feedback/internal/capability"
	"github.com/Resonate-Protocol/resonate-feedback/internal/clock"
	"github.com/Resonate-Protocol/resonate-feedback/internal/config"
	"github.com/Resonate-Protocol/resonate-feedback/internal/haptic"
	"github.com/Resonate-Protocol/resonate-feedback/internal/metrics"
	"github.com/Resonate-Protocol/resonate-feedback/internal/optimizer"
	"github.com/Resonate-Protocol/resonate-feedback/internal/spatial"
	"github.com/Resonate-Protocol/resonate-feedback/internal/voice"
	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio/output"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Config is the engine configuration
type Config = config.Config

var (
	// ErrNotInitialized is returned by playback before Initialize
	ErrNotInitialized = errors.New("feedback engine not initialized")
	// ErrClosed is returned after Shutdown
	ErrClosed = audioctx.ErrContextClosed
)

// Options supplies the configuration and the platform primitives. Nil
// primitives are derived from the configuration and the probed device.
type Options struct {
	Config Config
	// Capabilities skips detection when set
	Capabilities *capability.Capabilities
	Backend      audioctx.BackendFactory
	Vibrator     haptic.Vibrator
	Synthesizer  voice.Synthesizer
	Fetcher      assets.Fetcher
	Catalog      *assets.Catalog
	Battery      optimizer.BatterySource
	Clock        clock.Clock
	Logger       zerolog.Logger
	Registerer   prometheus.Registerer
}

// Status is the diagnostic snapshot for UIs
type Status struct {
	Initialized         bool             `json:"initialized"`
	ContextState        string           `json:"context_state"`
	ActiveSounds        int              `json:"active_sounds"`
	Speaking            bool             `json:"speaking"`
	HapticsSupported    bool             `json:"haptics_supported"`
	VoicesAvailable     int              `json:"voices_available"`
	SampleRate          int              `json:"sample_rate"`
	AudioAvailable      bool             `json:"audio_available"`
	Hidden              bool             `json:"hidden"`
	BatteryLevel        float64          `json:"battery_level"`
	ConnectionTier      string           `json:"connection_tier"`
	MaxConcurrentSounds int              `json:"max_concurrent_sounds"`
	SpatialEnabled      bool             `json:"spatial_enabled"`
	CachedAssets        int              `json:"cached_assets"`
	CacheBytes          int              `json:"cache_bytes"`
	Listener            spatial.Listener `json:"listener"`
	Optimizations       []string         `json:"optimizations,omitempty"`
}

// suspension reasons; the context runs only when none is held
type hold uint8

const (
	holdHidden hold = 1 << iota
	holdBattery
)

var contextStates = []string{
	audioctx.StateUninitialized.String(),
	audioctx.StateInitializing.String(),
	audioctx.StateRunning.String(),
	audioctx.StateSuspended.String(),
	audioctx.StateClosed.String(),
}

// Engine is the orchestration facade
type Engine struct {
	mu             sync.Mutex
	cfg            Config
	opts           Options
	log            zerolog.Logger
	caps           capability.Capabilities
	audio          *audioctx.Manager
	sounds         *spatial.Engine
	haptics        *haptic.Engine
	narration      *voice.Queue
	optimizer      *optimizer.Optimizer
	cache          *assets.Cache
	metrics        *metrics.Metrics
	battery        optimizer.BatterySource
	listeners      listeners
	initialized    bool
	closed         bool
	audioAvailable bool
	holds          hold
	music          string
	ambient        string
	preloadOn      bool
	bg             context.Context
	cancel         context.CancelFunc
	unsubscribe    func()
}

// New validates the configuration and builds every subsystem. Nothing
// touches the platform until Initialize.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg = cfg.Clone()
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	e := &Engine{
		cfg:  cfg,
		opts: opts,
		log:  opts.Logger.With().Str("component", "feedback").Logger(),
	}

	if opts.Capabilities != nil {
		e.caps = *opts.Capabilities
	} else {
		e.caps = capability.Detect(context.Background(), opts.Logger)
	}

	e.metrics = metrics.New(opts.Registerer)
	if err := e.build(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) build() error {
	opts, cfg, m := e.opts, e.cfg, e.metrics

	backend := opts.Backend
	if backend == nil && e.caps.Audio {
		backend = backendFor(cfg.Output, optimizer.BaseProfile(e.caps).BufferSize, cfg.Quality.SampleRate())
	}
	e.audio = audioctx.New(audioctx.Config{
		SampleRate: cfg.Quality.SampleRate(),
		NewBackend: backend,
		Clock:      opts.Clock,
		Logger:     opts.Logger,
		OnStateChange: func(s audioctx.State) {
			m.SetContextState(s.String(), contextStates)
		},
	})

	e.sounds = spatial.New(spatial.Config{
		Context:       e.audio,
		Clock:         opts.Clock,
		Logger:        opts.Logger,
		Defaults:      spatialParams(cfg),
		MaxConcurrent: cfg.MaxConcurrentSounds,
		OnEnded: func(string) {
			m.ActiveInstances.Set(float64(len(e.sounds.ActiveInstances())))
		},
	})

	vibrator := opts.Vibrator
	if vibrator == nil && e.caps.Vibration {
		vibrator = haptic.Log{Logger: opts.Logger}
	}
	e.haptics = haptic.New(haptic.Config{
		Capabilities: e.caps,
		Vibrator:     vibrator,
		Clock:        opts.Clock,
		Logger:       opts.Logger,
		OnDispatch: func(id string) {
			m.HapticDispatches.WithLabelValues(id).Inc()
		},
	})

	synth := opts.Synthesizer
	if synth == nil {
		synth = commandSynthesizer(cfg, e.caps)
	}
	e.narration = voice.New(voice.Config{
		Synthesizer: synth,
		Supported:   e.caps.Speech || opts.Synthesizer != nil,
		Language:    cfg.VoiceLanguage,
		Gender:      cfg.VoiceGender,
		Logger:      opts.Logger,
		OnStarted:   func() { m.Utterances.WithLabelValues("started").Inc() },
		OnCancelled: func() { m.Utterances.WithLabelValues("cancelled").Inc() },
		OnFailed:    func() { m.Utterances.WithLabelValues("failed").Inc() },
	})

	e.optimizer = optimizer.New(optimizer.Config{
		Capabilities: e.caps,
		Suspender:    batteryHold{e},
		Threshold:    cfg.Battery.Threshold,
		Hysteresis:   cfg.Battery.Hysteresis,
		Logger:       opts.Logger,
	})

	catalog := opts.Catalog
	if catalog == nil {
		var err error
		if catalog, err = assets.LoadCatalog(cfg.Assets.Catalog); err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = fetcherFor(cfg.Assets)
	}
	cache, err := assets.NewCache(assets.CacheConfig{
		Catalog:    catalog,
		Fetcher:    fetcher,
		Entries:    cfg.Assets.CacheEntries,
		Disabled:   !cfg.EnableAudioCache,
		SampleRate: cfg.Quality.SampleRate(),
		Logger:     opts.Logger,
		OnHit:      func(string) { m.CacheLookups.WithLabelValues("hit").Inc() },
		OnMiss:     func(string) { m.CacheLookups.WithLabelValues("miss").Inc() },
	})
	if err != nil {
		return err
	}
	e.cache = cache

	e.battery = opts.Battery
	if e.battery == nil && cfg.Battery.Poll {
		e.battery = optimizer.SysfsBattery{Path: cfg.Battery.SysfsPath}
	}
	return nil
}

// backendFor builds the output factory. A zero buffer size follows the
// device profile's frame count.
func backendFor(out config.OutputConfig, frames, sampleRate int) audioctx.BackendFactory {
	if out.Backend == "null" {
		return func() (output.Output, error) { return output.NewNull(), nil }
	}
	size := out.BufferSize
	if size <= 0 {
		size = framesDuration(frames, sampleRate)
	}
	return func() (output.Output, error) { return output.NewOto(size), nil }
}

func framesDuration(frames, sampleRate int) time.Duration {
	if frames <= 0 || sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

func fetcherFor(a config.AssetsConfig) assets.Fetcher {
	if a.BaseURL != "" {
		return assets.NewHTTPFetcher(a.BaseURL)
	}
	return assets.FileFetcher{BaseDir: a.BaseDir}
}

func commandSynthesizer(cfg Config, caps capability.Capabilities) voice.Synthesizer {
	command := cfg.SpeechCommand
	if command == "" && caps.Speech {
		command = capability.FindSpeechCommand()
	}
	if command == "" {
		return nil
	}
	return voice.NewCommandSynthesizer(command)
}

func spatialParams(cfg Config) spatial.Params {
	return spatial.Params{
		RefDistance: cfg.RefDistance,
		MaxDistance: cfg.MaxDistance,
		Rolloff:     cfg.RolloffFactor,
	}
}

// Initialize starts the audio context and background work. Missing audio
// hardware leaves haptics and narration working. Repeated calls are no-ops.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	err := e.audio.Initialize(ctx)
	switch {
	case errors.Is(err, audioctx.ErrUnsupportedPlatform):
		e.log.Warn().Err(err).Msg("audio unavailable, continuing without sound")
	case err != nil:
		return fmt.Errorf("initialize audio: %w", err)
	}

	if err := e.narration.LoadVoices(ctx); err != nil && !errors.Is(err, voice.ErrVoiceUnsupported) {
		e.log.Warn().Err(err).Msg("voice list unavailable")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.audioAvailable = err == nil
	e.initialized = true
	bg, cancel := context.WithCancel(context.Background())
	e.bg, e.cancel = bg, cancel
	e.unsubscribe = e.optimizer.Subscribe(func(optimizer.State) {
		if e.apply() {
			go e.preloadCritical(bg)
		}
	})
	held := e.holds != 0
	cleanup := e.cfg.CleanupInterval
	pollEvery := e.cfg.Battery.PollInterval
	e.mu.Unlock()

	if e.audioAvailable {
		e.cache.SetSampleRate(e.audio.SampleRate())
	}
	// holds taken before the context existed were no-ops
	if held {
		e.audio.Suspend()
	}
	preload := e.apply()

	e.sounds.StartSweeper(bg, cleanup)
	if e.battery != nil {
		e.optimizer.WatchBattery(bg, e.battery, e.opts.Clock, pollEvery)
	}

	if preload {
		e.preloadCritical(ctx)
	}

	e.log.Info().
		Bool("audio", e.audioAvailable).
		Bool("haptics", e.haptics.IsSupported()).
		Bool("voice", e.narration.IsSupported()).
		Str("form_factor", string(e.caps.FormFactor)).
		Msg("feedback engine initialized")
	return nil
}

// apply pushes the optimizer-adjusted config into every subsystem. It
// reports true when critical preloading has just become allowed.
func (e *Engine) apply() bool {
	eff := e.optimizer.OptimizedConfig(e.Config())
	state := e.optimizer.State()
	p := state.Profile

	e.cache.SetPolicy(assets.Policy{
		MaxBytes:          p.CacheSizeMB << 20,
		MaxBitrate:        p.MaxBitrate,
		StreamNonCritical: p.StreamNonCritical,
	})

	e.mu.Lock()
	preload := p.PreloadCritical && !e.preloadOn && e.initialized && e.audioAvailable && !e.closed
	e.preloadOn = p.PreloadCritical
	e.mu.Unlock()

	maxSounds := min(eff.MaxConcurrentSounds, state.Profile.MaxConcurrentSounds)
	spatialOn := eff.EnableSpatialAudio && state.Profile.SpatialAudio
	e.sounds.SetLimits(maxSounds, spatialOn)
	if err := e.audio.SetMasterGain(eff.MasterVolume); err != nil && !errors.Is(err, audioctx.ErrContextClosed) {
		e.log.Debug().Err(err).Msg("master gain not applied")
	}

	e.haptics.SetEnabled(eff.HapticEnabled)
	if eff.ScaleHaptics {
		e.haptics.SetIntensity(eff.HapticIntensity)
	} else {
		e.haptics.SetIntensity(1)
	}
	e.narration.SetLanguage(eff.VoiceLanguage, eff.VoiceGender)

	e.metrics.BatteryLevel.Set(state.BatteryLevel)
	e.metrics.MaxConcurrentSounds.Set(float64(maxSounds))
	metrics.SetBool(e.metrics.SpatialEnabled, spatialOn)
	return preload
}

func (e *Engine) preloadCritical(ctx context.Context) {
	if err := e.Preload(ctx, nil); err != nil && ctx.Err() == nil {
		e.log.Warn().Err(err).Msg("preload failed")
	}
}

// Shutdown stops all feedback and closes the audio context. It is safe
// to call more than once.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel, unsubscribe := e.cancel, e.unsubscribe
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	e.narration.Close()
	e.haptics.Stop()
	e.sounds.StopAll()
	err := e.audio.Close()
	e.log.Info().Msg("feedback engine shut down")
	return err
}

func (e *Engine) acquire(r hold) {
	e.mu.Lock()
	e.holds |= r
	e.mu.Unlock()
	e.audio.Suspend()
}

func (e *Engine) release(r hold) {
	e.mu.Lock()
	e.holds &^= r
	idle := e.holds == 0
	e.mu.Unlock()
	if idle {
		e.audio.Resume()
	}
}

// batteryHold lets the optimizer suspend the context without overriding
// a visibility suspend
type batteryHold struct{ e *Engine }

func (b batteryHold) Suspend() { b.e.acquire(holdBattery) }
func (b batteryHold) Resume()  { b.e.release(holdBattery) }

// SetVisibility suspends the context while the host UI is hidden
func (e *Engine) SetVisibility(hidden bool) {
	if hidden {
		e.acquire(holdHidden)
		return
	}
	e.release(holdHidden)
}

// SetListenerPose moves the listener
func (e *Engine) SetListenerPose(position, forward, up mgl64.Vec3) {
	e.sounds.SetListenerPose(position, forward, up)
}

// UpdateBattery feeds a battery sample to the optimizer
func (e *Engine) UpdateBattery(level float64) {
	e.optimizer.UpdateBattery(level)
}

// UpdateNetwork feeds a downlink sample to the optimizer
func (e *Engine) UpdateNetwork(downlinkMbps float64, effectiveType string) {
	e.optimizer.UpdateNetwork(downlinkMbps, effectiveType)
}

// UpdateConfig replaces the configuration and re-derives every setting.
// Quality changes take effect on the next Initialize.
func (e *Engine) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.cfg = cfg.Clone()
	initialized := e.initialized
	e.mu.Unlock()

	if initialized {
		if e.apply() {
			e.mu.Lock()
			bg := e.bg
			e.mu.Unlock()
			go e.preloadCritical(bg)
		}
	}
	e.log.Info().Msg("config updated")
	return nil
}

// RefreshVoices reloads the synthesizer voice list
func (e *Engine) RefreshVoices(ctx context.Context) error {
	return e.narration.LoadVoices(ctx)
}

// Config returns a copy of the current configuration
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Clone()
}

// Capabilities returns the probed device capabilities
func (e *Engine) Capabilities() capability.Capabilities {
	return e.caps
}

// Optimizer exposes the optimizer for recommendations and estimates
func (e *Engine) Optimizer() *optimizer.Optimizer {
	return e.optimizer
}

// Haptics exposes the pattern engine for custom patterns
func (e *Engine) Haptics() *haptic.Engine {
	return e.haptics
}

// Sounds exposes the spatial engine for per-instance control
func (e *Engine) Sounds() *spatial.Engine {
	return e.sounds
}

// Status returns a diagnostic snapshot
func (e *Engine) Status() Status {
	e.mu.Lock()
	initialized, audioOK, hidden := e.initialized && !e.closed, e.audioAvailable, e.holds&holdHidden != 0
	e.mu.Unlock()

	stats := e.sounds.Stats()
	opt := e.optimizer.State()
	maxSounds, spatialOn := e.sounds.Limits()
	vcaps := e.narration.Capabilities()
	e.metrics.ActiveInstances.Set(float64(stats.ActiveInstances))

	return Status{
		Initialized:         initialized,
		ContextState:        e.audio.State().String(),
		ActiveSounds:        stats.ActiveInstances,
		Speaking:            vcaps.Speaking,
		HapticsSupported:    e.haptics.IsSupported(),
		VoicesAvailable:     vcaps.Voices,
		SampleRate:          stats.SampleRate,
		AudioAvailable:      audioOK,
		Hidden:              hidden,
		BatteryLevel:        opt.BatteryLevel,
		ConnectionTier:      string(opt.Tier),
		MaxConcurrentSounds: maxSounds,
		SpatialEnabled:      spatialOn,
		CachedAssets:        e.cache.Len(),
		CacheBytes:          e.cache.SizeBytes(),
		Listener:            stats.Listener,
		Optimizations:       opt.ActiveOptimizations,
	}
}
