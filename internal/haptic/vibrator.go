// ABOUTME: Vibrator backends that render a scaled envelope on hardware
// ABOUTME: Log writes dispatches to the logger, Recorder keeps them in memory
package haptic

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Vibrator renders an on/off envelope. Vibrate must not block for the
// duration of the envelope.
type Vibrator interface {
	Vibrate(ctx context.Context, envelope []time.Duration) error
	Cancel() error
}

// Log is a vibrator for hosts without an actuator that still want to see
// what would have been dispatched
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Vibrate(_ context.Context, envelope []time.Duration) error {
	l.Logger.Info().Durs("envelope", envelope).Msg("vibrate")
	return nil
}

func (l Log) Cancel() error {
	l.Logger.Debug().Msg("vibrate cancel")
	return nil
}

// Recorder stores every dispatched envelope
type Recorder struct {
	mu      sync.Mutex
	calls   [][]time.Duration
	cancels int
	// Err is returned from Vibrate when set
	Err error
}

func (r *Recorder) Vibrate(_ context.Context, envelope []time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.calls = append(r.calls, append([]time.Duration(nil), envelope...))
	return nil
}

func (r *Recorder) Cancel() error {
	r.mu.Lock()
	r.cancels++
	r.mu.Unlock()
	return nil
}

// Calls returns a copy of the dispatched envelopes
func (r *Recorder) Calls() [][]time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]time.Duration, len(r.calls))
	copy(out, r.calls)
	return out
}

// Last returns the most recent envelope, or nil
func (r *Recorder) Last() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

// Cancels counts Cancel calls
func (r *Recorder) Cancels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancels
}
