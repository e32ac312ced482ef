// ABOUTME: Oto-based audio output implementation
// ABOUTME: Drives an oto player from the mixer reader
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process, so it is shared between
// Oto outputs and reused when the format matches.
var (
	sharedMu       sync.Mutex
	sharedCtx      *oto.Context
	sharedRate     int
	sharedChannels int
)

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	bufferSize time.Duration
}

// NewOto creates a new Oto output. bufferSize of zero lets oto choose.
func NewOto(bufferSize time.Duration) *Oto {
	return &Oto{bufferSize: bufferSize}
}

// Open initializes the device context and starts a persistent player
func (o *Oto) Open(sampleRate, channels int, src io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		return fmt.Errorf("oto output already open")
	}

	ctx, err := sharedContext(sampleRate, channels, o.bufferSize)
	if err != nil {
		return err
	}

	if err := ctx.Resume(); err != nil {
		return fmt.Errorf("failed to resume oto context: %w", err)
	}

	o.otoCtx = ctx
	o.player = ctx.NewPlayer(src)
	o.player.Play()

	return nil
}

func sharedContext(sampleRate, channels int, bufferSize time.Duration) (*oto.Context, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedCtx != nil {
		if sharedRate != sampleRate || sharedChannels != channels {
			return nil, fmt.Errorf("oto context already created at %dHz %dch, cannot switch to %dHz %dch",
				sharedRate, sharedChannels, sampleRate, channels)
		}
		return sharedCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	sharedCtx = ctx
	sharedRate = sampleRate
	sharedChannels = channels
	return ctx, nil
}

// Suspend pauses the device
func (o *Oto) Suspend() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx == nil {
		return ErrNotOpen
	}
	return o.otoCtx.Suspend()
}

// Resume restarts the device
func (o *Oto) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx == nil {
		return ErrNotOpen
	}
	return o.otoCtx.Resume()
}

// Close stops the player and suspends the shared context
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var err error
	if o.player != nil {
		err = o.player.Close()
		o.player = nil
	}
	if o.otoCtx != nil {
		if serr := o.otoCtx.Suspend(); err == nil {
			err = serr
		}
		o.otoCtx = nil
	}
	return err
}
