// ABOUTME: Silent output for headless hosts
// ABOUTME: Drains the mixer in real time without touching a device
package output

import (
	"io"
	"sync"
	"time"
)

// Null drains the source at the real-time rate so playback state
// advances the same way it would on hardware.
type Null struct {
	mu        sync.Mutex
	src       io.Reader
	frameSize int
	rate      int
	suspended bool
	stop      chan struct{}
	done      chan struct{}
}

// NewNull creates a silent output
func NewNull() *Null {
	return &Null{}
}

// Open starts draining src
func (n *Null) Open(sampleRate, channels int, src io.Reader) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.src = src
	n.rate = sampleRate
	n.frameSize = channels * 2
	n.stop = make(chan struct{})
	n.done = make(chan struct{})
	go n.drain(n.stop, n.done)
	return nil
}

func (n *Null) drain(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	const tick = 20 * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	buf := make([]byte, n.rate*n.frameSize*int(tick/time.Millisecond)/1000)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n.mu.Lock()
			suspended := n.suspended
			n.mu.Unlock()
			if suspended {
				continue
			}
			if _, err := n.src.Read(buf); err != nil {
				return
			}
		}
	}
}

// Suspend stops draining
func (n *Null) Suspend() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.src == nil {
		return ErrNotOpen
	}
	n.suspended = true
	return nil
}

// Resume continues draining
func (n *Null) Resume() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.src == nil {
		return ErrNotOpen
	}
	n.suspended = false
	return nil
}

// Close stops the drain goroutine
func (n *Null) Close() error {
	n.mu.Lock()
	stop, done := n.stop, n.done
	n.stop = nil
	n.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}
