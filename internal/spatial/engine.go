// ABOUTME: Spatial audio engine owning the listener and live sound instances
// ABOUTME: Each instance is a source -> positioner -> gain chain in the audio graph
package spatial

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/audioctx"
	"github.com/Resonate-Protocol/resonate-feedback/internal/clock"
	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	// ErrUnknownInstance is returned for ids not in the registry
	ErrUnknownInstance = errors.New("unknown sound instance")
	// ErrEmptyBuffer is wrapped in a SoundCreationError for empty buffers
	ErrEmptyBuffer = errors.New("empty audio buffer")
	// ErrSuperseded is returned when StopAll ran after the caller's epoch
	ErrSuperseded = errors.New("sound superseded by stop")
)

// SoundCreationError reports a failure to build an instance's chain.
// Callers may retry or fall back to non-spatial playback.
type SoundCreationError struct {
	AssetID string
	Err     error
}

func (e *SoundCreationError) Error() string {
	return fmt.Sprintf("create sound %q: %v", e.AssetID, e.Err)
}

func (e *SoundCreationError) Unwrap() error {
	return e.Err
}

// Intent tags what a sound is for and selects its default volume and loop
type Intent string

const (
	IntentSelect  Intent = "select"
	IntentHover   Intent = "hover"
	IntentAmbient Intent = "ambient"
)

// IntentDefaults returns the default (volume, loop) for an intent
func IntentDefaults(i Intent) (float64, bool) {
	switch i {
	case IntentAmbient:
		return 0.3, true
	case IntentHover:
		return 0.4, false
	}
	return 0.7, false
}

// Options customise a new instance. Volume and Loop override the intent.
type Options struct {
	AssetID string
	Intent  Intent
	Volume  *float64
	Loop    *bool
	Params  Params
	// Epoch from Engine.Epoch when the request was issued; zero skips the check
	Epoch uint64
}

func (o Options) resolve() (float64, bool) {
	volume, loop := IntentDefaults(o.Intent)
	if o.Volume != nil {
		volume = *o.Volume
	}
	if o.Loop != nil {
		loop = *o.Loop
	}
	return clamp01(volume), loop
}

// State is the lifecycle of a sound instance
type State int

const (
	StateCreated State = iota
	StatePlaying
	StatePaused
	StateStopped
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Context is the part of the audio context the engine depends on
type Context interface {
	Graph() (*audioctx.Graph, error)
	Timeline() time.Duration
	State() audioctx.State
	SampleRate() int
}

// Snapshot is a read-only view of an instance
type Snapshot struct {
	ID       string        `json:"id"`
	AssetID  string        `json:"asset_id,omitempty"`
	State    State         `json:"state"`
	Volume   float64       `json:"volume"`
	Loop     bool          `json:"loop"`
	Spatial  bool          `json:"spatial"`
	Position mgl64.Vec3    `json:"position"`
	Params   Params        `json:"params"`
	Offset   time.Duration `json:"offset"`
	Duration time.Duration `json:"duration"`
}

// Stats summarises the engine for diagnostics
type Stats struct {
	ActiveInstances int            `json:"active_instances"`
	Listener        Listener       `json:"listener"`
	ContextState    audioctx.State `json:"context_state"`
	SampleRate      int            `json:"sample_rate"`
}

// Config configures an Engine
type Config struct {
	Context       Context
	Clock         clock.Clock
	Logger        zerolog.Logger
	Defaults      Params
	MaxConcurrent int
	OnEnded       func(id string)
}

type instance struct {
	id        string
	assetID   string
	seq       int64
	buf       *audio.Buffer
	graph     *audioctx.Graph
	chain     *audioctx.Chain
	source    *audioctx.BufferSource
	state     State
	volume    float64
	loop      bool
	spatial   bool
	position  mgl64.Vec3
	params    Params
	startedAt time.Duration
	offset    time.Duration
	ended     bool
}

// Engine owns the listener pose and the registry of live instances.
// Callers only ever hold instance ids.
type Engine struct {
	mu             sync.Mutex
	cfg            Config
	log            zerolog.Logger
	listener       Listener
	instances      map[string]*instance
	seq            int64
	maxConcurrent  int
	spatialEnabled bool
	epoch          uint64
	sweepTimer     clock.Timer
}

// New creates an engine over the given audio context
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	cfg.Defaults = cfg.Defaults.withDefaults(DefaultParams)
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}

	return &Engine{
		cfg:            cfg,
		log:            cfg.Logger.With().Str("component", "spatial").Logger(),
		listener:       DefaultListener,
		instances:      make(map[string]*instance),
		maxConcurrent:  cfg.MaxConcurrent,
		spatialEnabled: true,
		epoch:          1,
	}
}

// CreateSpatialSound builds a positioned instance. It fails with
// audioctx.ErrContextUnavailable unless the context is running.
func (e *Engine) CreateSpatialSound(buf *audio.Buffer, position mgl64.Vec3, opts Options) (string, error) {
	return e.create(buf, &position, opts)
}

// CreateSound builds a non-positioned instance
func (e *Engine) CreateSound(buf *audio.Buffer, opts Options) (string, error) {
	return e.create(buf, nil, opts)
}

func (e *Engine) create(buf *audio.Buffer, position *mgl64.Vec3, opts Options) (string, error) {
	graph, err := e.cfg.Context.Graph()
	if err != nil {
		return "", fmt.Errorf("create sound: %w", err)
	}
	if buf.Frames() == 0 {
		return "", &SoundCreationError{AssetID: opts.AssetID, Err: ErrEmptyBuffer}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if opts.Epoch != 0 && opts.Epoch != e.epoch {
		return "", ErrSuperseded
	}

	e.enforceLimitLocked()

	volume, loop := opts.resolve()
	e.seq++
	inst := &instance{
		id:      uuid.NewString(),
		assetID: opts.AssetID,
		seq:     e.seq,
		buf:     buf,
		graph:   graph,
		state:   StateCreated,
		volume:  volume,
		loop:    loop,
		params:  opts.Params.withDefaults(e.cfg.Defaults),
	}

	inst.source = graph.NewSource(buf, loop)
	inst.chain = graph.NewChain(inst.source, graph.NewPositioner(), graph.NewGain(volume))

	if position != nil && e.spatialEnabled {
		inst.spatial = true
		inst.position = *position
		e.applyPanLocked(inst)
	}

	graph.Connect(inst.chain)
	e.instances[inst.id] = inst

	e.log.Debug().
		Str("id", inst.id).
		Str("asset", inst.assetID).
		Bool("spatial", inst.spatial).
		Float64("volume", volume).
		Bool("loop", loop).
		Msg("sound created")

	return inst.id, nil
}

// enforceLimitLocked stops the oldest instance when the registry is
// full, preferring one-shot sounds over loops.
func (e *Engine) enforceLimitLocked() {
	live := e.sortedLocked()
	if len(live) < e.maxConcurrent {
		return
	}

	victim, ok := lo.Find(live, func(i *instance) bool { return !i.loop })
	if !ok {
		victim = live[0]
	}
	e.log.Debug().Str("id", victim.id).Int("limit", e.maxConcurrent).Msg("evicting sound at concurrency limit")
	e.stopLocked(victim, StateStopped)
}

// Play starts an instance. Playing a paused instance resumes it.
func (e *Engine) Play(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[id]
	if !ok {
		return fmt.Errorf("play %s: %w", id, ErrUnknownInstance)
	}

	switch inst.state {
	case StatePaused:
		return e.resumeLocked(inst)
	case StateCreated:
		return e.startLocked(inst, inst.source, 0)
	}
	return nil
}

// Pause stops the source and records the playback position
func (e *Engine) Pause(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[id]
	if !ok {
		return fmt.Errorf("pause %s: %w", id, ErrUnknownInstance)
	}
	if inst.state != StatePlaying {
		return nil
	}

	inst.offset = e.positionLocked(inst)
	inst.source.Stop()
	inst.state = StatePaused
	return nil
}

// Resume continues a paused instance from its recorded position. The
// source is single-shot, so a new one is created and routed through the
// existing positioner and gain.
func (e *Engine) Resume(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[id]
	if !ok {
		return fmt.Errorf("resume %s: %w", id, ErrUnknownInstance)
	}
	if inst.state != StatePaused {
		return nil
	}
	return e.resumeLocked(inst)
}

func (e *Engine) resumeLocked(inst *instance) error {
	src := inst.graph.NewSource(inst.buf, inst.loop)
	inst.chain.ReplaceSource(src)
	inst.source = src
	return e.startLocked(inst, src, inst.offset)
}

func (e *Engine) startLocked(inst *instance, src *audioctx.BufferSource, offset time.Duration) error {
	if err := src.Start(offset, e.endedCallback(inst, src)); err != nil {
		return &SoundCreationError{AssetID: inst.assetID, Err: err}
	}
	inst.offset = offset
	inst.startedAt = e.cfg.Context.Timeline()
	inst.ended = false
	inst.state = StatePlaying
	return nil
}

func (e *Engine) endedCallback(inst *instance, src *audioctx.BufferSource) func() {
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		// A replaced source finishing must not end the instance
		if inst.source == src {
			inst.ended = true
		}
	}
}

// positionLocked is the current playback position in the buffer
func (e *Engine) positionLocked(inst *instance) time.Duration {
	if inst.state != StatePlaying {
		return inst.offset
	}

	pos := inst.offset + e.cfg.Context.Timeline() - inst.startedAt
	duration := inst.buf.Duration()
	if duration <= 0 {
		return 0
	}
	if inst.loop {
		return pos % duration
	}
	if pos > duration {
		return duration
	}
	return pos
}

// Stop removes an instance. Unknown ids are ignored so a stop can never
// fail against a sound that already ended.
func (e *Engine) Stop(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if inst, ok := e.instances[id]; ok {
		e.stopLocked(inst, StateStopped)
	}
	return nil
}

func (e *Engine) stopLocked(inst *instance, final State) {
	inst.source.Stop()
	inst.graph.Disconnect(inst.chain)
	inst.state = final
	delete(e.instances, inst.id)
}

// StopAll stops every instance and invalidates requests issued before it
func (e *Engine) StopAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.epoch++
	n := len(e.instances)
	for _, inst := range e.instances {
		e.stopLocked(inst, StateStopped)
	}
	if n > 0 {
		e.log.Debug().Int("count", n).Msg("stopped all sounds")
	}
	return n
}

// Epoch identifies the current StopAll generation
func (e *Engine) Epoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

// UpdatePosition moves an instance and recomputes its panning
func (e *Engine) UpdatePosition(id string, position mgl64.Vec3) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[id]
	if !ok {
		return fmt.Errorf("update position %s: %w", id, ErrUnknownInstance)
	}

	inst.position = position
	if e.spatialEnabled {
		inst.spatial = true
		e.applyPanLocked(inst)
	}
	return nil
}

// UpdateVolume sets an instance's gain, clamped to [0,1]
func (e *Engine) UpdateVolume(id string, volume float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[id]
	if !ok {
		return fmt.Errorf("update volume %s: %w", id, ErrUnknownInstance)
	}

	inst.volume = clamp01(volume)
	inst.chain.Gain().Set(inst.volume)
	return nil
}

// SetListenerPose moves the listener and re-pans every positioned instance
func (e *Engine) SetListenerPose(position, forward, up mgl64.Vec3) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listener = Listener{Position: position, Forward: forward, Up: up}
	for _, inst := range e.instances {
		if inst.spatial {
			e.applyPanLocked(inst)
		}
	}
}

// Listener returns the current pose
func (e *Engine) Listener() Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listener
}

func (e *Engine) applyPanLocked(inst *instance) {
	left, right := Pan(e.listener, inst.position, inst.params)
	inst.chain.Positioner().SetGains(left, right)
}

// SetLimits applies the optimizer's effective limits to new instances
func (e *Engine) SetLimits(maxConcurrent int, spatialEnabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if maxConcurrent > 0 {
		e.maxConcurrent = maxConcurrent
	}
	e.spatialEnabled = spatialEnabled
}

// Limits returns the concurrency limit and spatial flag
func (e *Engine) Limits() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxConcurrent, e.spatialEnabled
}

// Cleanup removes instances whose non-looping source has finished,
// either as observed by the renderer or by elapsed context time.
func (e *Engine) Cleanup() int {
	e.mu.Lock()
	var removed []string
	for _, inst := range e.sortedLocked() {
		if inst.state != StatePlaying || inst.loop {
			continue
		}
		if inst.ended || e.positionLocked(inst) >= inst.buf.Duration() {
			e.stopLocked(inst, StateEnded)
			removed = append(removed, inst.id)
		}
	}
	e.mu.Unlock()

	for _, id := range removed {
		if e.cfg.OnEnded != nil {
			e.cfg.OnEnded(id)
		}
	}
	return len(removed)
}

// StartSweeper runs Cleanup every interval until ctx is done
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	var arm func()
	arm = func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		e.sweepTimer = e.cfg.Clock.AfterFunc(interval, func() {
			e.Cleanup()
			arm()
		})
	}

	e.mu.Lock()
	if e.sweepTimer != nil {
		e.sweepTimer.Stop()
	}
	e.mu.Unlock()

	arm()
	context.AfterFunc(ctx, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.sweepTimer != nil {
			e.sweepTimer.Stop()
		}
	})
}

// ActiveInstances lists playing and paused instances in creation order
func (e *Engine) ActiveInstances() []Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := lo.Filter(e.sortedLocked(), func(i *instance, _ int) bool {
		return i.state == StatePlaying || i.state == StatePaused
	})
	return lo.Map(active, func(i *instance, _ int) Snapshot { return e.snapshotLocked(i) })
}

// Instance returns a snapshot of one instance
func (e *Engine) Instance(id string) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[id]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshotLocked(inst), true
}

// Stats reports engine state for diagnostics
func (e *Engine) Stats() Stats {
	active := len(e.ActiveInstances())
	return Stats{
		ActiveInstances: active,
		Listener:        e.Listener(),
		ContextState:    e.cfg.Context.State(),
		SampleRate:      e.cfg.Context.SampleRate(),
	}
}

func (e *Engine) snapshotLocked(inst *instance) Snapshot {
	return Snapshot{
		ID:       inst.id,
		AssetID:  inst.assetID,
		State:    inst.state,
		Volume:   inst.volume,
		Loop:     inst.loop,
		Spatial:  inst.spatial,
		Position: inst.position,
		Params:   inst.params,
		Offset:   e.positionLocked(inst),
		Duration: inst.buf.Duration(),
	}
}

func (e *Engine) sortedLocked() []*instance {
	list := lo.Values(e.instances)
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	return list
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
