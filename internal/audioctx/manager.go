// ABOUTME: Lifecycle state machine for the single audio processing context
// ABOUTME: Owns the output backend and the render graph it pulls from
package audioctx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/clock"
	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio/output"
	"github.com/rs/zerolog"
)

var (
	// ErrUnsupportedPlatform means the host offers no audio output primitive
	ErrUnsupportedPlatform = errors.New("audio output unsupported on this platform")
	// ErrContextClosed is returned by any operation after Close
	ErrContextClosed = errors.New("audio context closed")
	// ErrContextUnavailable is returned when the context is not running
	ErrContextUnavailable = errors.New("audio context unavailable")
)

// DefaultSampleRate is reported while the context is not running
const DefaultSampleRate = 44100

// State is the lifecycle state of the context
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StateSuspended
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// BackendFactory opens the platform output. A nil factory means the
// platform has no audio primitive.
type BackendFactory func() (output.Output, error)

// Config configures a Manager
type Config struct {
	SampleRate    int
	NewBackend    BackendFactory
	Clock         clock.Clock
	Logger        zerolog.Logger
	// OnStateChange runs with the manager locked and must not call back into it
	OnStateChange func(State)
}

// Manager owns the audio context lifecycle:
// Uninitialized -> Initializing -> Running <-> Suspended -> Closed
type Manager struct {
	initMu sync.Mutex // serialises Initialize

	mu           sync.Mutex
	cfg          Config
	log          zerolog.Logger
	clock        clock.Clock
	state        State
	backend      output.Output
	graph        *Graph
	runningSince time.Time
	accumulated  time.Duration
	master       float64
}

// New creates a manager. Nothing touches the platform until Initialize.
func New(cfg Config) *Manager {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	return &Manager{
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "audioctx").Logger(),
		clock:  cfg.Clock,
		master: 1.0,
	}
}

// Initialize opens the backend and starts rendering. It is a no-op once
// the context is running or suspended.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	switch m.state {
	case StateRunning, StateSuspended:
		m.mu.Unlock()
		return nil
	case StateClosed:
		m.mu.Unlock()
		return ErrContextClosed
	}
	m.setStateLocked(StateInitializing)
	m.mu.Unlock()

	backend, graph, err := m.open(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		// Closed while the backend was opening
		if backend != nil {
			_ = backend.Close()
		}
		return ErrContextClosed
	}
	if err != nil {
		m.setStateLocked(StateUninitialized)
		return err
	}

	m.backend = backend
	m.graph = graph
	m.graph.SetMasterGain(m.master)
	m.accumulated = 0
	m.runningSince = m.clock.Now()
	m.setStateLocked(StateRunning)
	m.log.Info().Int("sample_rate", m.cfg.SampleRate).Msg("audio context running")
	return nil
}

func (m *Manager) open(ctx context.Context) (output.Output, *Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if m.cfg.NewBackend == nil {
		return nil, nil, ErrUnsupportedPlatform
	}

	backend, err := m.cfg.NewBackend()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnsupportedPlatform, err)
	}

	graph := NewGraph(m.cfg.SampleRate)
	if err := backend.Open(m.cfg.SampleRate, OutputChannels, graph); err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("%w: %w", ErrUnsupportedPlatform, err)
	}
	return backend, graph, nil
}

// Suspend pauses the context. It does nothing unless the context is
// running, so callers may invoke it speculatively.
func (m *Manager) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning {
		return
	}

	m.accumulated += m.clock.Now().Sub(m.runningSince)
	if err := m.backend.Suspend(); err != nil {
		m.log.Warn().Err(err).Msg("backend suspend failed")
	}
	m.setStateLocked(StateSuspended)
}

// Resume restarts a suspended context. It does nothing in other states.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateSuspended {
		return
	}

	if err := m.backend.Resume(); err != nil {
		m.log.Warn().Err(err).Msg("backend resume failed")
	}
	m.runningSince = m.clock.Now()
	m.setStateLocked(StateRunning)
}

// Close releases the backend. Closed is terminal; repeated calls return nil.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return nil
	}

	var err error
	if m.graph != nil {
		m.graph.DisconnectAll()
	}
	if m.backend != nil {
		err = m.backend.Close()
		m.backend = nil
	}
	m.setStateLocked(StateClosed)
	m.log.Info().Msg("audio context closed")
	return err
}

// State returns the lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentTime is the running time of the context, or 0 when not running
func (m *Manager) CurrentTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning {
		return 0
	}
	return m.accumulated + m.clock.Now().Sub(m.runningSince)
}

// Timeline is the context time regardless of state. It freezes while
// suspended, the same way rendering does.
func (m *Manager) Timeline() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateRunning {
		return m.accumulated + m.clock.Now().Sub(m.runningSince)
	}
	return m.accumulated
}

// SampleRate is the render rate, or DefaultSampleRate when not running
func (m *Manager) SampleRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRunning {
		return DefaultSampleRate
	}
	return m.cfg.SampleRate
}

// Graph returns the render graph for building new voices. It requires a
// running context.
func (m *Manager) Graph() (*Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateRunning:
		return m.graph, nil
	case StateClosed:
		return nil, ErrContextClosed
	}
	return nil, fmt.Errorf("%w: context is %s", ErrContextUnavailable, m.state)
}

// SetMasterGain sets the graph output gain. It fails after Close.
func (m *Manager) SetMasterGain(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return ErrContextClosed
	}
	m.master = clamp01(v)
	if m.graph != nil {
		m.graph.SetMasterGain(m.master)
	}
	return nil
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.log.Debug().Stringer("from", m.state).Stringer("to", s).Msg("state change")
	m.state = s
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(s)
	}
}
