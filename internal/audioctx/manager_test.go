// ABOUTME: Tests for the audio context lifecycle
// ABOUTME: Covers initialization, idempotent suspend/resume, close and timing
package audioctx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/internal/clock"
	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *fakeBackend, *clock.Fake) {
	t.Helper()
	backend := &fakeBackend{}
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(Config{SampleRate: 48000, NewBackend: factoryFor(backend), Clock: clk})
	return m, backend, clk
}

func TestInitializeIsIdempotent(t *testing.T) {
	m, backend, _ := newTestManager(t)
	assert.Equal(t, StateUninitialized, m.State())

	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.Initialize(context.Background()))

	assert.Equal(t, StateRunning, m.State())
	assert.Equal(t, 48000, backend.rate)
	assert.Equal(t, OutputChannels, backend.channels)
	assert.NotNil(t, backend.src)
}

func TestInitializeWithoutBackend(t *testing.T) {
	m := New(Config{})

	err := m.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.Equal(t, StateUninitialized, m.State())
}

func TestInitializeBackendFailure(t *testing.T) {
	cause := errors.New("no device")
	m := New(Config{NewBackend: func() (output.Output, error) { return nil, cause }})

	err := m.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StateUninitialized, m.State())
}

func TestInitializeOpenFailureClosesBackend(t *testing.T) {
	backend := &fakeBackend{openErr: errors.New("busy")}
	m := New(Config{NewBackend: factoryFor(backend)})

	require.Error(t, m.Initialize(context.Background()))
	assert.Equal(t, 1, backend.closes)
}

func TestInitializeCancelledContext(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Initialize(ctx), context.Canceled)
	assert.Equal(t, StateUninitialized, m.State())
}

func TestSuspendTwiceIsNoError(t *testing.T) {
	m, backend, _ := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	m.Suspend()
	m.Suspend()

	assert.Equal(t, StateSuspended, m.State())
	assert.Equal(t, 1, backend.suspends)
}

func TestSuspendResumeOutsideValidStates(t *testing.T) {
	m, backend, _ := newTestManager(t)

	// Before initialization both are no-ops
	m.Suspend()
	m.Resume()
	assert.Equal(t, StateUninitialized, m.State())

	require.NoError(t, m.Initialize(context.Background()))
	m.Resume()
	assert.Equal(t, StateRunning, m.State())
	assert.Equal(t, 0, backend.resumes)

	m.Suspend()
	m.Resume()
	m.Resume()
	assert.Equal(t, StateRunning, m.State())
	assert.Equal(t, 1, backend.resumes)
}

func TestCloseIsTerminal(t *testing.T) {
	m, backend, _ := newTestManager(t)
	require.NoError(t, m.Initialize(context.Background()))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 1, backend.closes)
	assert.Equal(t, StateClosed, m.State())

	assert.ErrorIs(t, m.Initialize(context.Background()), ErrContextClosed)
	_, err := m.Graph()
	assert.ErrorIs(t, err, ErrContextClosed)
	assert.ErrorIs(t, m.SetMasterGain(0.5), ErrContextClosed)

	// Speculative calls stay silent after close
	m.Suspend()
	m.Resume()
	assert.Equal(t, StateClosed, m.State())
}

func TestGraphRequiresRunning(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Graph()
	assert.ErrorIs(t, err, ErrContextUnavailable)

	require.NoError(t, m.Initialize(context.Background()))
	g, err := m.Graph()
	require.NoError(t, err)
	assert.Equal(t, 48000, g.SampleRate())

	m.Suspend()
	_, err = m.Graph()
	assert.ErrorIs(t, err, ErrContextUnavailable)
}

func TestCurrentTimeAndSampleRate(t *testing.T) {
	m, _, clk := newTestManager(t)

	assert.Equal(t, time.Duration(0), m.CurrentTime())
	assert.Equal(t, DefaultSampleRate, m.SampleRate())

	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, 48000, m.SampleRate())

	clk.Advance(2 * time.Second)
	assert.Equal(t, 2*time.Second, m.CurrentTime())

	m.Suspend()
	clk.Advance(5 * time.Second)
	assert.Equal(t, time.Duration(0), m.CurrentTime())
	assert.Equal(t, 2*time.Second, m.Timeline())
	assert.Equal(t, DefaultSampleRate, m.SampleRate())

	m.Resume()
	clk.Advance(time.Second)
	assert.Equal(t, 3*time.Second, m.CurrentTime())
	assert.Equal(t, 3*time.Second, m.Timeline())
}

func TestStateChangeCallback(t *testing.T) {
	var states []State
	backend := &fakeBackend{}
	m := New(Config{
		NewBackend:    factoryFor(backend),
		Clock:         clock.NewFake(time.Unix(0, 0)),
		OnStateChange: func(s State) { states = append(states, s) },
	})

	require.NoError(t, m.Initialize(context.Background()))
	m.Suspend()
	m.Resume()
	require.NoError(t, m.Close())

	assert.Equal(t, []State{StateInitializing, StateRunning, StateSuspended, StateRunning, StateClosed}, states)
}

func TestMasterGainAppliedOnInitialize(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.SetMasterGain(0.25))
	require.NoError(t, m.Initialize(context.Background()))

	g, err := m.Graph()
	require.NoError(t, err)
	assert.Equal(t, 0.25, g.MasterGain())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(42)", State(42).String())
}
