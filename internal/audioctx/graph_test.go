// ABOUTME: Tests for the software render graph
// ABOUTME: Covers mixing, panning gains, looping, offsets and end callbacks
package audioctx

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-feedback/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantBuffer(frames, rate int, value int16) *audio.Buffer {
	samples := make([]int32, frames)
	for i := range samples {
		samples[i] = audio.SampleFromInt16(value)
	}
	return &audio.Buffer{Samples: samples, Format: audio.Format{SampleRate: rate, Channels: 1, BitDepth: 16}}
}

func rampBuffer(values ...int16) *audio.Buffer {
	samples := make([]int32, len(values))
	for i, v := range values {
		samples[i] = audio.SampleFromInt16(v)
	}
	return &audio.Buffer{Samples: samples, Format: audio.Format{SampleRate: 100, Channels: 1, BitDepth: 16}}
}

func render(t *testing.T, g *Graph, frames int) []int16 {
	t.Helper()
	p := make([]byte, frames*4)
	n, err := g.Read(p)
	require.NoError(t, err)
	require.Equal(t, len(p), n)

	out := make([]int16, frames*2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
	}
	return out
}

func playChain(t *testing.T, g *Graph, buf *audio.Buffer, loop bool, onEnded func()) *Chain {
	t.Helper()
	src := g.NewSource(buf, loop)
	c := g.NewChain(src, g.NewPositioner(), g.NewGain(1))
	g.Connect(c)
	require.NoError(t, src.Start(0, onEnded))
	return c
}

func TestGraphRendersSilenceWhenIdle(t *testing.T) {
	g := NewGraph(100)
	for _, s := range render(t, g, 8) {
		assert.Equal(t, int16(0), s)
	}
}

func TestGraphAppliesPositionerAndGain(t *testing.T) {
	g := NewGraph(100)
	c := playChain(t, g, constantBuffer(10, 100, 16384), false, nil)
	c.Positioner().SetGains(1, 0.5)

	out := render(t, g, 2)
	assert.Equal(t, int16(16384), out[0])
	assert.Equal(t, int16(8192), out[1])

	c.Gain().Set(0.5)
	out = render(t, g, 1)
	assert.Equal(t, int16(8192), out[0])
	assert.Equal(t, int16(4096), out[1])
}

func TestGraphMasterGainAndClipping(t *testing.T) {
	g := NewGraph(100)
	playChain(t, g, constantBuffer(10, 100, 30000), false, nil)
	playChain(t, g, constantBuffer(10, 100, 30000), false, nil)

	out := render(t, g, 1)
	assert.Equal(t, int16(32767), out[0])

	g.SetMasterGain(0.25)
	out = render(t, g, 1)
	assert.InDelta(t, 15000, int(out[0]), 2)
}

func TestGraphEndsNonLoopingSource(t *testing.T) {
	g := NewGraph(100)
	ended := 0
	c := playChain(t, g, rampBuffer(1000, 2000), false, func() { ended++ })

	out := render(t, g, 4)
	assert.Equal(t, []int16{1000, 1000, 2000, 2000, 0, 0, 0, 0}, out)
	assert.Equal(t, 1, ended)
	assert.True(t, c.Source().Ended())

	render(t, g, 4)
	assert.Equal(t, 1, ended)
}

func TestGraphLoopsSource(t *testing.T) {
	g := NewGraph(100)
	c := playChain(t, g, rampBuffer(1000, 2000), true, nil)

	out := render(t, g, 4)
	assert.Equal(t, []int16{1000, 1000, 2000, 2000, 1000, 1000, 2000, 2000}, out)
	assert.False(t, c.Source().Ended())
}

func TestSourceStartsAtOffset(t *testing.T) {
	g := NewGraph(100)
	buf := rampBuffer(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	src := g.NewSource(buf, false)
	g.Connect(g.NewChain(src, g.NewPositioner(), g.NewGain(1)))

	require.NoError(t, src.Start(30*time.Millisecond, nil))
	assert.Equal(t, 30*time.Millisecond, src.Offset())

	out := render(t, g, 1)
	assert.Equal(t, int16(4), out[0])
}

func TestSourceIsSingleShot(t *testing.T) {
	g := NewGraph(100)
	src := g.NewSource(rampBuffer(1), false)

	require.NoError(t, src.Start(0, nil))
	assert.ErrorIs(t, src.Start(0, nil), ErrSourceStarted)
}

func TestReplaceSourceKeepsStages(t *testing.T) {
	g := NewGraph(100)
	c := playChain(t, g, rampBuffer(100, 200, 300, 400), false, nil)
	c.Positioner().SetGains(0.5, 1)
	old := c.Source()

	next := g.NewSource(rampBuffer(100, 200, 300, 400), false)
	c.ReplaceSource(next)
	require.NoError(t, next.Start(20*time.Millisecond, nil))

	out := render(t, g, 1)
	assert.Equal(t, int16(150), out[0])
	assert.Equal(t, int16(300), out[1])

	old.Stop()
	assert.Same(t, next, c.Source())
}

func TestDisconnectAll(t *testing.T) {
	g := NewGraph(100)
	c := playChain(t, g, constantBuffer(10, 100, 1000), false, nil)
	assert.Equal(t, 1, g.Connected())

	g.DisconnectAll()
	assert.Equal(t, 0, g.Connected())
	assert.Equal(t, int16(0), render(t, g, 1)[0])
	assert.False(t, c.Source().Ended())
}

func TestSourceResamplesMismatchedRate(t *testing.T) {
	g := NewGraph(200)
	playChain(t, g, rampBuffer(10, 20), false, nil)

	out := render(t, g, 4)
	assert.Equal(t, []int16{10, 10, 10, 10, 20, 20, 20, 20}, out)
}
