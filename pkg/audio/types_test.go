// ABOUTME: Tests for PCM buffer helpers
// ABOUTME: Covers depth normalisation and buffer timing used by the mixer
package audio

import (
	"testing"
	"time"
)

func TestSampleFromInt16(t *testing.T) {
	cases := map[int16]int32{
		0:      0,
		1:      256,
		-1:     -256,
		32767:  8388352,
		-32768: Min24Bit,
	}
	for in, want := range cases {
		if got := SampleFromInt16(in); got != want {
			t.Errorf("SampleFromInt16(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSampleFrom24BitSignExtends(t *testing.T) {
	cases := []struct {
		raw  [3]byte
		want int32
	}{
		{[3]byte{0x01, 0x00, 0x00}, 1},
		{[3]byte{0xFF, 0xFF, 0xFF}, -1},
		{[3]byte{0xFF, 0xFF, 0x7F}, Max24Bit},
		{[3]byte{0x00, 0x00, 0x80}, Min24Bit},
		{[3]byte{0x10, 0x27, 0x00}, 10000},
	}
	for _, c := range cases {
		if got := SampleFrom24Bit(c.raw); got != c.want {
			t.Errorf("SampleFrom24Bit(% x) = %d, want %d", c.raw, got, c.want)
		}
	}
}

func TestSampleFromDepthMatchesInt16Path(t *testing.T) {
	for _, s := range []int16{0, 42, -42, 32767, -32768} {
		if SampleFromDepth(int32(s), 16) != SampleFromInt16(s) {
			t.Errorf("16-bit paths disagree for %d", s)
		}
	}
	if got := SampleFromDepth(-3, 8); got != -3<<16 {
		t.Errorf("8-bit: got %d", got)
	}
	if got := SampleFromDepth(777, 24); got != 777 {
		t.Errorf("24-bit should pass through, got %d", got)
	}
	if got := SampleFromDepth(1<<20, 32); got != 1<<12 {
		t.Errorf("32-bit: got %d", got)
	}
}

func TestBufferTiming(t *testing.T) {
	// a 250ms mono click at 48kHz
	click := &Buffer{
		Samples: make([]int32, 12000),
		Format:  Format{Codec: "wav", SampleRate: 48000, Channels: 1, BitDepth: 16},
	}
	if click.Frames() != 12000 {
		t.Errorf("frames = %d", click.Frames())
	}
	if click.Duration() != 250*time.Millisecond {
		t.Errorf("duration = %v", click.Duration())
	}
	if click.SizeBytes() != 48000 {
		t.Errorf("size = %d", click.SizeBytes())
	}

	stereo := &Buffer{Samples: make([]int32, 22050*2), Format: Format{SampleRate: 22050, Channels: 2}}
	if stereo.Duration() != time.Second {
		t.Errorf("stereo duration = %v", stereo.Duration())
	}
}

func TestBufferZeroValues(t *testing.T) {
	var nilBuf *Buffer
	if nilBuf.Frames() != 0 || nilBuf.Duration() != 0 || nilBuf.SizeBytes() != 0 {
		t.Error("nil buffer should report zero length")
	}
	noRate := &Buffer{Samples: make([]int32, 10), Format: Format{Channels: 1}}
	if noRate.Duration() != 0 || noRate.FrameAt(time.Second) != 0 {
		t.Error("buffer without a sample rate should have no timing")
	}
}

func TestBufferFrameAtClamps(t *testing.T) {
	buf := &Buffer{Samples: make([]int32, 800), Format: Format{SampleRate: 200, Channels: 2}}
	cases := map[time.Duration]int{
		-50 * time.Millisecond:  0,
		0:                       0,
		500 * time.Millisecond:  100,
		1500 * time.Millisecond: 300,
		time.Minute:             400,
	}
	for off, want := range cases {
		if got := buf.FrameAt(off); got != want {
			t.Errorf("FrameAt(%v) = %d, want %d", off, got, want)
		}
	}
}
