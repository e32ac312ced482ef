// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for pull-based playback backends
package output

import (
	"errors"
	"io"
)

// ErrNotOpen is returned when controlling an output that was never opened
var ErrNotOpen = errors.New("output not open")

// Output represents an audio device that pulls interleaved signed 16-bit
// little-endian PCM from a source reader.
type Output interface {
	// Open initializes the device and starts pulling from src
	Open(sampleRate, channels int, src io.Reader) error

	// Suspend pauses the device without releasing it
	Suspend() error

	// Resume restarts a suspended device
	Resume() error

	// Close releases output resources
	Close() error
}
