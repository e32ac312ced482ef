// ABOUTME: Software audio graph rendered by the output device
// ABOUTME: Mixes source -> positioner -> gain chains into 16-bit stereo PCM
package audioctx

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
)

// ErrSourceStarted is returned when a single-shot source is started twice
var ErrSourceStarted = errors.New("buffer source already started")

// OutputChannels is the channel count the graph renders
const OutputChannels = 2

// Graph mixes connected chains. It implements io.Reader so an output
// backend can pull from it directly.
type Graph struct {
	mu         sync.Mutex
	sampleRate int
	master     float64
	chains     map[*Chain]struct{}
	mix        []float64
}

// NewGraph creates an empty graph rendering at sampleRate
func NewGraph(sampleRate int) *Graph {
	return &Graph{
		sampleRate: sampleRate,
		master:     1.0,
		chains:     make(map[*Chain]struct{}),
	}
}

// SampleRate returns the render rate
func (g *Graph) SampleRate() int {
	return g.sampleRate
}

// SetMasterGain sets the output gain applied after mixing
func (g *Graph) SetMasterGain(v float64) {
	g.mu.Lock()
	g.master = clamp01(v)
	g.mu.Unlock()
}

// MasterGain returns the output gain
func (g *Graph) MasterGain() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.master
}

// BufferSource plays a decoded buffer once. Like a hardware voice it
// cannot be restarted; a new source is needed to play again.
type BufferSource struct {
	g       *Graph
	buf     *audio.Buffer
	loop    bool
	offset  time.Duration
	cursor  float64
	step    float64
	started bool
	stopped bool
	ended   bool
	onEnded func()
}

// Positioner holds the per-channel gains computed by spatialisation
type Positioner struct {
	g     *Graph
	left  float64
	right float64
}

// Gain is the per-instance volume stage
type Gain struct {
	g     *Graph
	value float64
}

// Chain is one voice: source -> positioner -> gain -> output
type Chain struct {
	g          *Graph
	source     *BufferSource
	positioner *Positioner
	gain       *Gain
}

// NewSource creates an unstarted source for buf
func (g *Graph) NewSource(buf *audio.Buffer, loop bool) *BufferSource {
	step := 1.0
	if buf != nil && buf.Format.SampleRate > 0 && g.sampleRate > 0 {
		step = float64(buf.Format.SampleRate) / float64(g.sampleRate)
	}
	return &BufferSource{g: g, buf: buf, loop: loop, step: step}
}

// NewPositioner creates a positioner with unity gains
func (g *Graph) NewPositioner() *Positioner {
	return &Positioner{g: g, left: 1, right: 1}
}

// NewGain creates a gain stage
func (g *Graph) NewGain(value float64) *Gain {
	return &Gain{g: g, value: clamp01(value)}
}

// NewChain wires the three stages together. It is not audible until Connect.
func (g *Graph) NewChain(src *BufferSource, pos *Positioner, gain *Gain) *Chain {
	return &Chain{g: g, source: src, positioner: pos, gain: gain}
}

// Connect adds c to the mix
func (g *Graph) Connect(c *Chain) {
	g.mu.Lock()
	g.chains[c] = struct{}{}
	g.mu.Unlock()
}

// Disconnect removes c from the mix
func (g *Graph) Disconnect(c *Chain) {
	g.mu.Lock()
	delete(g.chains, c)
	g.mu.Unlock()
}

// Connected returns the number of chains in the mix
func (g *Graph) Connected() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.chains)
}

// DisconnectAll removes every chain and stops its source
func (g *Graph) DisconnectAll() {
	g.mu.Lock()
	for c := range g.chains {
		c.source.stopped = true
	}
	g.chains = make(map[*Chain]struct{})
	g.mu.Unlock()
}

// Source returns the chain's current source
func (c *Chain) Source() *BufferSource {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return c.source
}

// ReplaceSource swaps in a new source, keeping positioner and gain
func (c *Chain) ReplaceSource(src *BufferSource) {
	c.g.mu.Lock()
	c.source.stopped = true
	c.source = src
	c.g.mu.Unlock()
}

// Positioner returns the chain's positioner
func (c *Chain) Positioner() *Positioner {
	return c.positioner
}

// Gain returns the chain's gain stage
func (c *Chain) Gain() *Gain {
	return c.gain
}

// Start begins playback at offset into the buffer
func (s *BufferSource) Start(offset time.Duration, onEnded func()) error {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()

	if s.started {
		return ErrSourceStarted
	}
	s.started = true
	s.offset = offset
	s.onEnded = onEnded
	if s.buf != nil {
		s.cursor = float64(s.buf.FrameAt(offset))
	}
	return nil
}

// Stop silences the source permanently
func (s *BufferSource) Stop() {
	s.g.mu.Lock()
	s.stopped = true
	s.g.mu.Unlock()
}

// Offset returns the position the source was started from
func (s *BufferSource) Offset() time.Duration {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return s.offset
}

// Ended reports whether rendering reached the end of a non-looping buffer
func (s *BufferSource) Ended() bool {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return s.ended
}

// Started reports whether Start has been called
func (s *BufferSource) Started() bool {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	return s.started
}

// SetGains sets the left and right channel gains
func (p *Positioner) SetGains(left, right float64) {
	p.g.mu.Lock()
	p.left, p.right = left, right
	p.g.mu.Unlock()
}

// Gains returns the left and right channel gains
func (p *Positioner) Gains() (float64, float64) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	return p.left, p.right
}

// Set changes the gain, clamped to [0,1]
func (g *Gain) Set(v float64) {
	g.g.mu.Lock()
	g.value = clamp01(v)
	g.g.mu.Unlock()
}

// Value returns the current gain
func (g *Gain) Value() float64 {
	g.g.mu.Lock()
	defer g.g.mu.Unlock()
	return g.value
}

// Read renders interleaved stereo int16 little-endian PCM into p.
// Silence is rendered when nothing is playing.
func (g *Graph) Read(p []byte) (int, error) {
	const frameBytes = OutputChannels * 2
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	var ended []func()

	g.mu.Lock()
	n := frames * OutputChannels
	if cap(g.mix) < n {
		g.mix = make([]float64, n)
	}
	mix := g.mix[:n]
	for i := range mix {
		mix[i] = 0
	}

	for c := range g.chains {
		if cb := c.render(mix, frames); cb != nil {
			ended = append(ended, cb)
		}
	}

	master := g.master
	for i, v := range mix {
		v *= master
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(p[i*2:], uint16(int16(math.Round(v*32767))))
	}
	g.mu.Unlock()

	for _, cb := range ended {
		cb()
	}

	return frames * frameBytes, nil
}

// render accumulates this chain into mix. Called with the graph lock held.
// Returns the source's end callback when the source finishes in this block.
func (c *Chain) render(mix []float64, frames int) func() {
	s := c.source
	if !s.started || s.stopped || s.ended || s.buf == nil {
		return nil
	}

	bufFrames := s.buf.Frames()
	channels := s.buf.Format.Channels
	if bufFrames == 0 {
		s.ended = true
		return s.onEnded
	}

	left := c.positioner.left * c.gain.value
	right := c.positioner.right * c.gain.value

	for f := 0; f < frames; f++ {
		idx := int(s.cursor)
		if idx >= bufFrames {
			if !s.loop {
				s.ended = true
				return s.onEnded
			}
			s.cursor -= float64(bufFrames)
			idx = int(s.cursor)
		}

		l := float64(s.buf.Samples[idx*channels]) / audio.FullScale
		r := l
		if channels > 1 {
			r = float64(s.buf.Samples[idx*channels+1]) / audio.FullScale
		}

		mix[f*2] += l * left
		mix[f*2+1] += r * right
		s.cursor += s.step
	}

	return nil
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
